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

// SMSProvider submits SMS through the gateway provider's HTTP API.
type SMSProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	senderID   string
}

func NewSMSProvider(logger *slog.Logger, apiURL, apiKey, senderID string, httpClient *http.Client) *SMSProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SMSProvider{
		logger:     logger.With("provider", "sms"),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		senderID:   senderID,
	}
}

func (p *SMSProvider) Name() string { return "sms" }

type smsSendRequestBody struct {
	Sender     string   `json:"sender"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

type smsSendResponseBody struct {
	Messages []struct {
		ID        int64  `json:"id"`
		Recipient string `json:"recipient"`
		Status    int    `json:"status"`
	} `json:"messages"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

func (p *SMSProvider) Send(ctx context.Context, req Request) (*Response, error) {
	body := smsSendRequestBody{
		Sender:     p.senderID,
		Body:       req.Body,
		Recipients: []string{req.Recipient},
	}

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sms request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create sms HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.WarnContext(ctx, "SMS provider request failed", "error", err, "job_id", req.JobID)
		return nil, NewTransientError("sms_network", err.Error())
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewTransientError("sms_read_body", err.Error())
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp smsSendResponseBody
		message := fmt.Sprintf("sms provider returned status %d", httpResp.StatusCode)
		if json.Unmarshal(respBytes, &errResp) == nil && errResp.Message != "" {
			message = errResp.Message
		}
		p.logger.WarnContext(ctx, "SMS send rejected", "status_code", httpResp.StatusCode, "message", message, "job_id", req.JobID)
		return nil, classifyHTTPStatus("sms", httpResp.StatusCode, message)
	}

	var okResp smsSendResponseBody
	if err := json.Unmarshal(respBytes, &okResp); err != nil {
		p.logger.WarnContext(ctx, "SMS accepted but response unparsable", "error", err, "job_id", req.JobID)
		return &Response{}, nil
	}

	providerMsgID := ""
	if len(okResp.Messages) > 0 {
		providerMsgID = fmt.Sprintf("%d", okResp.Messages[0].ID)
	}

	p.logger.InfoContext(ctx, "SMS submitted", "provider_message_id", providerMsgID, "job_id", req.JobID)
	return &Response{ProviderMessageID: providerMsgID}, nil
}
