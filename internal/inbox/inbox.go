// internal/inbox/inbox.go

// Package inbox checks that the portal sent its push notification email.
package inbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/network"
	"github.com/kbase/jgipush/internal/poll"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Address is a mail address with its display name.
type Address struct {
	Name    string `json:"Name"`
	Address string `json:"Address"`
}

// Message is a message summary as listed by the mailbox.
type Message struct {
	ID      string    `json:"ID"`
	Subject string    `json:"Subject"`
	From    Address   `json:"From"`
	To      []Address `json:"To"`
	Created time.Time `json:"Created"`
	Snippet string    `json:"Snippet"`
}

// Mailbox finds and removes messages.
type Mailbox interface {
	// Search returns messages whose subject contains subject.
	Search(ctx context.Context, subject string) ([]Message, error)
	Delete(ctx context.Context, ids ...string) error
}

// HTTPMailbox talks to a Mailpit compatible REST API.
type HTTPMailbox struct {
	base   string
	http   *retryablehttp.Client
	logger *zap.Logger
}

var _ Mailbox = (*HTTPMailbox)(nil)

// NewHTTPMailbox creates a mailbox client for the server at baseURL. A nil
// client gets the network package defaults.
func NewHTTPMailbox(baseURL string, hc *retryablehttp.Client, logger *zap.Logger) *HTTPMailbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("inbox")
	if hc == nil {
		hc = network.NewClient(network.NewClientConfig(), logger)
	}
	return &HTTPMailbox{base: strings.TrimRight(baseURL, "/"), http: hc, logger: logger}
}

type searchResponse struct {
	Total    int       `json:"total"`
	Messages []Message `json:"messages"`
}

func (m *HTTPMailbox) Search(ctx context.Context, subject string) ([]Message, error) {
	q := url.Values{"query": {fmt.Sprintf("subject:%q", subject)}}
	u := m.base + "/api/v1/search?" + q.Encode()
	req, err := network.NewRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var out searchResponse
	if err := m.do(req, &out); err != nil {
		return nil, err
	}
	// The server matches loosely; keep only real subject matches.
	var matched []Message
	for _, msg := range out.Messages {
		if strings.Contains(msg.Subject, subject) {
			matched = append(matched, msg)
		}
	}
	m.logger.Debug("Searched mailbox.", zap.String("subject", subject), zap.Int("matches", len(matched)))
	return matched, nil
}

func (m *HTTPMailbox) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string][]string{"IDs": ids})
	if err != nil {
		return err
	}
	req, err := network.NewRequest(ctx, http.MethodDelete, m.base+"/api/v1/messages", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return m.do(req, nil)
}

func (m *HTTPMailbox) do(req *retryablehttp.Request, out interface{}) error {
	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read mailbox response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &network.StatusError{Method: req.Method, URL: req.URL.String(), Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode mailbox response: %w", err)
	}
	return nil
}

// AwaitMessage polls mb until a message with subject arrives, then deletes
// every match so the next check starts from an empty inbox. The earliest
// match is returned.
func AwaitMessage(ctx context.Context, mb Mailbox, poller *poll.Poller, subject string, timeout time.Duration) (Message, error) {
	var found []Message
	err := poller.Until(ctx, "email with subject "+subject, timeout, func(ctx context.Context) (bool, error) {
		msgs, err := mb.Search(ctx, subject)
		if err != nil {
			return false, err
		}
		found = msgs
		return len(msgs) > 0, nil
	}, nil)
	if err != nil {
		return Message{}, err
	}

	first := found[0]
	ids := make([]string, 0, len(found))
	for _, msg := range found {
		ids = append(ids, msg.ID)
		if msg.Created.Before(first.Created) {
			first = msg
		}
	}
	if err := mb.Delete(ctx, ids...); err != nil {
		return first, fmt.Errorf("failed to delete notification emails: %w", err)
	}
	return first, nil
}
