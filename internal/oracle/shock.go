// internal/oracle/shock.go
package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/network"
)

// Node is a shock node's identity and file summary.
type Node struct {
	ID   string `json:"id"`
	File struct {
		Name     string            `json:"name"`
		Size     int64             `json:"size"`
		Checksum map[string]string `json:"checksum"`
	} `json:"file"`
}

// MD5 returns the node's md5 checksum, if shock computed one.
func (n Node) MD5() string { return n.File.Checksum["md5"] }

type shockResponse struct {
	Status int         `json:"status"`
	Data   *Node       `json:"data"`
	Error  interface{} `json:"error"`
}

// ShockClient reads node metadata from shock.
type ShockClient struct {
	base   string
	token  string
	http   *retryablehttp.Client
	logger *zap.Logger
}

// NewShockClient creates a client for the shock server at base.
func NewShockClient(base, token string, hc *retryablehttp.Client, logger *zap.Logger) *ShockClient {
	return &ShockClient{base: strings.TrimRight(base, "/"), token: token, http: hc, logger: logger.Named("shock")}
}

// GetNode fetches node id. A missing node is ErrNotFound.
func (c *ShockClient) GetNode(ctx context.Context, id string) (Node, error) {
	u := c.base + "/node/" + url.PathEscape(id)
	req, err := network.NewRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Node{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "OAuth "+c.token)
	}
	c.logger.Debug("Fetching node.", zap.String("node", id))
	resp, err := c.http.Do(req)
	if err != nil {
		return Node{}, fmt.Errorf("GET %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Node{}, fmt.Errorf("failed to read node %s: %w", id, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Node{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Node{}, &network.StatusError{Method: http.MethodGet, URL: u, Status: resp.StatusCode, Body: truncate(string(raw))}
	}
	var out shockResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Node{}, fmt.Errorf("failed to decode node %s: %w", id, err)
	}
	if out.Data == nil {
		return Node{}, fmt.Errorf("node %s: empty response: %v", id, out.Error)
	}
	return *out.Data, nil
}
