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

// EmailProvider submits email over the transactional mail provider's
// HTTP API.
type EmailProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	fromAddr   string
}

func NewEmailProvider(logger *slog.Logger, apiURL, apiKey, fromAddr string, httpClient *http.Client) *EmailProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &EmailProvider{
		logger:     logger.With("provider", "email"),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		fromAddr:   fromAddr,
	}
}

func (p *EmailProvider) Name() string { return "email" }

type emailSendRequestBody struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type emailSendResponseBody struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message,omitempty"`
}

func (p *EmailProvider) Send(ctx context.Context, req Request) (*Response, error) {
	body := emailSendRequestBody{
		From:    p.fromAddr,
		To:      req.Recipient,
		Subject: req.Subject,
		HTML:    req.Body,
	}

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create email HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.WarnContext(ctx, "Email provider request failed", "error", err, "job_id", req.JobID)
		return nil, NewTransientError("email_network", err.Error())
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewTransientError("email_read_body", err.Error())
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp emailSendResponseBody
		message := fmt.Sprintf("email provider returned status %d", httpResp.StatusCode)
		if json.Unmarshal(respBytes, &errResp) == nil && errResp.Message != "" {
			message = errResp.Message
		}
		p.logger.WarnContext(ctx, "Email send rejected", "status_code", httpResp.StatusCode, "message", message, "job_id", req.JobID)
		return nil, classifyHTTPStatus("email", httpResp.StatusCode, message)
	}

	var okResp emailSendResponseBody
	if err := json.Unmarshal(respBytes, &okResp); err != nil {
		// Provider accepted the message but the body was unparsable; the
		// send succeeded, only the provider ID is lost.
		p.logger.WarnContext(ctx, "Email accepted but response unparsable", "error", err, "job_id", req.JobID)
		return &Response{}, nil
	}

	p.logger.InfoContext(ctx, "Email submitted", "provider_message_id", okResp.MessageID, "job_id", req.JobID)
	return &Response{ProviderMessageID: okResp.MessageID}, nil
}
