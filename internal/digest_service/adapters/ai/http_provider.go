package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/famline/notifications/internal/digest_service/domain"
)

// HTTPProvider calls the narrative generation service over its HTTP
// API.
type HTTPProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
}

func NewHTTPProvider(logger *slog.Logger, apiURL, apiKey string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPProvider{
		logger:     logger.With("provider", "ai_narrative"),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
	}
}

type narrativeRequestItem struct {
	ContentType string `json:"content_type"`
	Caption     string `json:"caption"`
	AuthorName  string `json:"author_name"`
	MediaURL    string `json:"media_url,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type narrativeRequestBody struct {
	Audience       string                 `json:"audience"`
	RecipientName  string                 `json:"recipient_name"`
	Relationship   string                 `json:"relationship,omitempty"`
	TonePreference string                 `json:"tone_preference,omitempty"`
	Items          []narrativeRequestItem `json:"items"`
}

type narrativeResponseBody struct {
	Title           string   `json:"title,omitempty"`
	Intro           string   `json:"intro"`
	Narrative       string   `json:"narrative"`
	Closing         string   `json:"closing"`
	MediaReferences []string `json:"media_references,omitempty"`
	Message         string   `json:"message,omitempty"`
}

func (p *HTTPProvider) GenerateNarrative(ctx context.Context, nc NarrativeContext) (*domain.Narrative, error) {
	body := narrativeRequestBody{
		Audience:       string(nc.Audience),
		RecipientName:  nc.RecipientName,
		Relationship:   nc.Relationship,
		TonePreference: nc.TonePreference,
		Items:          make([]narrativeRequestItem, 0, len(nc.Items)),
	}
	for _, item := range nc.Items {
		reqItem := narrativeRequestItem{
			ContentType: item.ContentType,
			Caption:     item.Caption,
			AuthorName:  item.AuthorName,
			CreatedAt:   item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if item.MediaURL.Valid {
			reqItem.MediaURL = item.MediaURL.String
		}
		body.Items = append(body.Items, reqItem)
	}

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal narrative request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create narrative HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.WarnContext(ctx, "Narrative provider request failed", "error", err)
		return nil, fmt.Errorf("narrative provider request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read narrative response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp narrativeResponseBody
		message := fmt.Sprintf("narrative provider returned status %d", httpResp.StatusCode)
		if json.Unmarshal(respBytes, &errResp) == nil && errResp.Message != "" {
			message = errResp.Message
		}
		p.logger.WarnContext(ctx, "Narrative generation rejected", "status_code", httpResp.StatusCode, "message", message)
		return nil, fmt.Errorf("narrative generation failed: %s", message)
	}

	var okResp narrativeResponseBody
	if err := json.Unmarshal(respBytes, &okResp); err != nil {
		return nil, fmt.Errorf("failed to decode narrative response: %w", err)
	}

	return &domain.Narrative{
		Title:           okResp.Title,
		Intro:           okResp.Intro,
		Narrative:       okResp.Narrative,
		Closing:         okResp.Closing,
		MediaReferences: okResp.MediaReferences,
	}, nil
}
