// internal/oracle/handle.go
package oracle

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Handle maps a handle id to the shock node holding the bytes.
type Handle struct {
	HID       string `json:"hid"`
	NodeID    string `json:"id"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	FileName  string `json:"file_name"`
	RemoteMD5 string `json:"remote_md5"`
}

// HandleClient resolves handle ids.
type HandleClient struct {
	rpc *rpcClient
}

// NewHandleClient creates a client for the handle service at url.
func NewHandleClient(url, token string, hc *retryablehttp.Client, logger *zap.Logger) *HandleClient {
	return &HandleClient{rpc: newRPCClient(url, token, hc, logger.Named("handle"))}
}

// HIDsToHandles resolves hids in order. A hid the service does not know is ErrNotFound.
func (c *HandleClient) HIDsToHandles(ctx context.Context, hids ...string) ([]Handle, error) {
	if len(hids) == 0 {
		return nil, nil
	}
	var res [][]Handle
	if err := c.rpc.call(ctx, "AbstractHandle.hids_to_handles", &res, hids); err != nil {
		return nil, err
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("hids_to_handles: unexpected result shape")
	}
	byID := make(map[string]Handle, len(res[0]))
	for _, h := range res[0] {
		byID[h.HID] = h
	}
	out := make([]Handle, 0, len(hids))
	for _, hid := range hids {
		h, ok := byID[hid]
		if !ok {
			return nil, fmt.Errorf("handle %s: %w", hid, ErrNotFound)
		}
		out = append(out, h)
	}
	return out, nil
}
