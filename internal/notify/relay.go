package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RelaySender posts messages to a remote /send-email endpoint
type RelaySender struct {
	url    string
	token  string
	client *http.Client
}

// NewRelaySender creates a sender for the relay at url. A non-empty token is
// sent as a bearer credential, which an authenticated relay such as this
// service's own /send-email requires. A nil client gets a default with a
// 10s timeout.
func NewRelaySender(url, token string, client *http.Client) *RelaySender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RelaySender{url: url, token: token, client: client}
}

func (s *RelaySender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrSendFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: relay request: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: relay returned %d: %s", ErrSendFailed, resp.StatusCode, bytes.TrimSpace(text))
	}
	return nil
}
