package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"

	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
)

const defaultWhatsAppURL = "https://graph.facebook.com/v19.0"

// WhatsAppProvider sends text messages through the WhatsApp Cloud API.
type WhatsAppProvider struct {
	client  *http.Client
	baseURL string
	token   string
	phoneID string
}

type whatsAppRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func NewWhatsAppProvider(client *http.Client, baseURL, token, phoneID string) (*WhatsAppProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is nil")
	}
	if strings.TrimSpace(token) == "" || strings.TrimSpace(phoneID) == "" {
		return nil, fmt.Errorf("whatsapp token and phone id are required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultWhatsAppURL
	}
	return &WhatsAppProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		phoneID: phoneID,
	}, nil
}

func (p *WhatsAppProvider) Name() string { return "whatsapp" }

func (p *WhatsAppProvider) Address(contact pgrepo.ContactRecord) (string, bool) {
	phone := strings.TrimPrefix(strings.TrimSpace(contact.WhatsAppPhone), "+")
	if phone == "" {
		return "", false
	}
	return phone, true
}

func (p *WhatsAppProvider) Send(ctx context.Context, address, text string) (string, error) {
	body, err := json.Marshal(whatsAppRequest{
		MessagingProduct: "whatsapp",
		To:               address,
		Type:             "text",
		Text:             whatsAppText{Body: text},
	})
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("marshal whatsapp request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+p.phoneID+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create whatsapp request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		statusErr := fmt.Errorf("%w: whatsapp status %d", ErrRejected, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", backoff.Permanent(statusErr)
		}
		return "", statusErr
	}

	var decoded whatsAppResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode whatsapp response: %w", err)
	}
	if len(decoded.Messages) == 0 || decoded.Messages[0].ID == "" {
		return "", backoff.Permanent(fmt.Errorf("%w: whatsapp response has no message id", ErrRejected))
	}
	return decoded.Messages[0].ID, nil
}
