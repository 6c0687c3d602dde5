// internal/oracle/jsonrpc.go

// Package oracle queries the KBase services a push lands in (workspace,
// handle service, shock) so tests can assert on what a push produced. It is
// never part of the push protocol itself.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when the requested object, handle or node does not exist.
var ErrNotFound = errors.New("not found")

// errBodyLimit caps how much of an error body is kept in messages.
const errBodyLimit = 2048

// RPCError is the error member of a KBase JSON-RPC 1.1 response.
type RPCError struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"error"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

type rpcRequest struct {
	Version string        `json:"version"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      string        `json:"id"`
}

type rpcResponse struct {
	Version string              `json:"version"`
	Result  jsoniter.RawMessage `json:"result"`
	Error   *RPCError           `json:"error"`
}

// rpcClient speaks KBase's JSON-RPC 1.1 dialect over HTTP POST.
type rpcClient struct {
	url    string
	token  string
	http   *retryablehttp.Client
	logger *zap.Logger
}

func newRPCClient(url, token string, hc *retryablehttp.Client, logger *zap.Logger) *rpcClient {
	return &rpcClient{url: url, token: token, http: hc, logger: logger}
}

// call invokes method and decodes the result array into result.
func (c *rpcClient) call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	body, err := json.Marshal(rpcRequest{Version: "1.1", Method: method, Params: params, ID: uuid.NewString()})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	req, err := network.NewRequest(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	c.logger.Debug("Calling service.", zap.String("method", method), zap.String("url", c.url))
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &network.StatusError{Method: http.MethodPost, URL: c.url, Status: resp.StatusCode, Body: truncate(string(raw))}
		}
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if out.Error != nil {
		return out.Error
	}
	if resp.StatusCode != http.StatusOK {
		return &network.StatusError{Method: http.MethodPost, URL: c.url, Status: resp.StatusCode, Body: truncate(string(raw))}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > errBodyLimit {
		return s[:errBodyLimit] + "...[truncated]"
	}
	return s
}
