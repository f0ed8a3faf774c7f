package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultSparkPostURL = "https://api.sparkpost.com/api/v1/transmissions"

// SparkPost delivers mail through the SparkPost transmissions API.
type SparkPost struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSparkPost creates a SparkPost transport. baseURL may be empty to use the
// production API endpoint.
func NewSparkPost(apiKey, baseURL string) *SparkPost {
	if baseURL == "" {
		baseURL = defaultSparkPostURL
	}
	return &SparkPost{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts a single transmission to SparkPost.
func (s *SparkPost) Send(ctx context.Context, msg *Message) (*Result, error) {
	payload := map[string]interface{}{
		"recipients": []map[string]interface{}{
			{"address": map[string]string{"email": msg.To, "name": msg.ToName}},
		},
		"content": map[string]interface{}{
			"from":    map[string]string{"email": msg.FromEmail, "name": msg.FromName},
			"subject": msg.Subject,
			"html":    msg.HTMLBody,
			"text":    msg.TextBody,
		},
	}
	if msg.ReplyTo != "" {
		payload["content"].(map[string]interface{})["reply_to"] = msg.ReplyTo
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparkpost request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sparkpost error: status %d: %s", resp.StatusCode, snippet)
	}

	var result struct {
		Results struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("sparkpost decode response: %w", err)
	}

	return &Result{MessageID: result.Results.ID, SentAt: time.Now()}, nil
}
