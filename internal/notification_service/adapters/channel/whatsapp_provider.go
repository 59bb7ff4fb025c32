package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WhatsAppProvider submits template messages through the business
// messaging HTTP API.
type WhatsAppProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
}

func NewWhatsAppProvider(logger *slog.Logger, apiURL, apiKey string, httpClient *http.Client) *WhatsAppProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WhatsAppProvider{
		logger:     logger.With("provider", "whatsapp"),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
	}
}

func (p *WhatsAppProvider) Name() string { return "whatsapp" }

type whatsappSendRequestBody struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type whatsappSendResponseBody struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *WhatsAppProvider) Send(ctx context.Context, req Request) (*Response, error) {
	body := whatsappSendRequestBody{
		MessagingProduct: "whatsapp",
		To:               req.Recipient,
		Type:             "text",
	}
	body.Text.Body = req.Body

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal whatsapp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create whatsapp HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.WarnContext(ctx, "WhatsApp provider request failed", "error", err, "job_id", req.JobID)
		return nil, NewTransientError("whatsapp_network", err.Error())
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewTransientError("whatsapp_read_body", err.Error())
	}

	var parsed whatsappSendResponseBody
	_ = json.Unmarshal(respBytes, &parsed)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		message := fmt.Sprintf("whatsapp provider returned status %d", httpResp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		p.logger.WarnContext(ctx, "WhatsApp send rejected", "status_code", httpResp.StatusCode, "message", message, "job_id", req.JobID)
		return nil, classifyHTTPStatus("whatsapp", httpResp.StatusCode, message)
	}

	providerMsgID := ""
	if len(parsed.Messages) > 0 {
		providerMsgID = parsed.Messages[0].ID
	}

	p.logger.InfoContext(ctx, "WhatsApp message submitted", "provider_message_id", providerMsgID, "job_id", req.JobID)
	return &Response{ProviderMessageID: providerMsgID}, nil
}
