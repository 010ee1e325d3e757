package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MailerLiteService mirrors waitlist signups into a MailerLite group
type MailerLiteService struct {
	apiKey     string
	groupID    string
	httpClient *http.Client
	baseURL    string
}

// NewMailerLiteService creates a new MailerLite service
func NewMailerLiteService(apiKey, groupID string) *MailerLiteService {
	return &MailerLiteService{
		apiKey:  apiKey,
		groupID: groupID,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		baseURL: "https://connect.mailerlite.com/api",
	}
}

// addSubscriberRequest is the MailerLite upsert payload
type addSubscriberRequest struct {
	Email  string            `json:"email"`
	Fields map[string]string `json:"fields,omitempty"`
	Groups []string          `json:"groups,omitempty"`
	Status string            `json:"status,omitempty"`
}

// AddSubscriber upserts a subscriber into the waitlist group
func (s *MailerLiteService) AddSubscriber(ctx context.Context, email, name string) error {
	req := addSubscriberRequest{
		Email:  email,
		Status: "active",
	}
	if name != "" {
		req.Fields = map[string]string{"name": name}
	}
	if s.groupID != "" {
		req.Groups = []string{s.groupID}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/subscribers", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create subscriber request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send subscriber request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("MailerLite API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}
