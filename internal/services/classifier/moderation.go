package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// ModerationClient calls a category-flag moderation endpoint shaped like
// the OpenAI moderations API.
type ModerationClient struct {
	http   *retryablehttp.Client
	url    string
	apiKey string
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

func NewModerationClient(client *retryablehttp.Client, url, apiKey string) (*ModerationClient, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is nil")
	}
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("moderation url is required")
	}
	return &ModerationClient{http: client, url: strings.TrimSpace(url), apiKey: apiKey}, nil
}

func (c *ModerationClient) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	body, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return ModerationResult{}, fmt.Errorf("marshal moderation request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return ModerationResult{}, fmt.Errorf("create moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ModerationResult{}, fmt.Errorf("%w: moderation call: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ModerationResult{}, fmt.Errorf("%w: moderation status %d", ErrTransient, resp.StatusCode)
	}

	var decoded moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ModerationResult{}, fmt.Errorf("%w: decode moderation response: %v", ErrAmbiguous, err)
	}
	if len(decoded.Results) == 0 {
		return ModerationResult{}, fmt.Errorf("%w: moderation response has no results", ErrAmbiguous)
	}

	result := ModerationResult{Flagged: decoded.Results[0].Flagged}
	for name, hit := range decoded.Results[0].Categories {
		if hit {
			result.Categories = append(result.Categories, name)
		}
	}
	sort.Strings(result.Categories)
	return result, nil
}
