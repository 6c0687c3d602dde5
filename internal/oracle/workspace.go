// internal/oracle/workspace.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// ObjectInfo is the workspace's object_info tuple.
type ObjectInfo struct {
	ObjectID    int64
	Name        string
	Type        string
	SaveDate    string
	Version     int
	SavedBy     string
	WorkspaceID int64
	Workspace   string
	Checksum    string
	Size        int64
	Meta        map[string]string
}

// UnmarshalJSON decodes the 11 element tuple.
func (o *ObjectInfo) UnmarshalJSON(b []byte) error {
	var t []jsoniter.RawMessage
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	if len(t) != 11 {
		return fmt.Errorf("object info: want 11 fields, got %d", len(t))
	}
	targets := []interface{}{
		&o.ObjectID, &o.Name, &o.Type, &o.SaveDate, &o.Version, &o.SavedBy,
		&o.WorkspaceID, &o.Workspace, &o.Checksum, &o.Size, &o.Meta,
	}
	for i, dst := range targets {
		if err := json.Unmarshal(t[i], dst); err != nil {
			return fmt.Errorf("object info field %d: %w", i, err)
		}
	}
	return nil
}

// Object is one object returned by get_objects2.
type Object struct {
	Info ObjectInfo             `json:"info"`
	Data map[string]interface{} `json:"data"`
}

// HandleIDs returns every handle id ("hid") referenced anywhere in the data.
// Pushed reads keep them under lib/file, assemblies at the top level.
func (o Object) HandleIDs() []string {
	var out []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case map[string]interface{}:
			for k, sub := range t {
				if s, ok := sub.(string); ok && k == "hid" {
					out = append(out, s)
					continue
				}
				walk(sub)
			}
		case []interface{}:
			for _, sub := range t {
				walk(sub)
			}
		}
	}
	walk(o.Data)
	return out
}

// WorkspaceClient reads objects from the workspace service.
type WorkspaceClient struct {
	rpc *rpcClient
}

// NewWorkspaceClient creates a client for the service at url.
func NewWorkspaceClient(url, token string, hc *retryablehttp.Client, logger *zap.Logger) *WorkspaceClient {
	return &WorkspaceClient{rpc: newRPCClient(url, token, hc, logger.Named("workspace"))}
}

type objectSpec struct {
	Workspace string `json:"workspace"`
	Name      string `json:"name"`
	Ver       int    `json:"ver,omitempty"`
}

type getObjectsParams struct {
	Objects []objectSpec `json:"objects"`
	NoData  int          `json:"no_data,omitempty"`
}

type getObjectsResult struct {
	Data []Object `json:"data"`
}

// GetObject returns the latest version of an object, or version ver when ver > 0.
func (c *WorkspaceClient) GetObject(ctx context.Context, workspace, name string, ver int) (Object, error) {
	var res []getObjectsResult
	err := c.rpc.call(ctx, "Workspace.get_objects2", &res, getObjectsParams{
		Objects: []objectSpec{{Workspace: workspace, Name: name, Ver: ver}},
	})
	if err != nil {
		if isMissing(err) {
			return Object{}, fmt.Errorf("object %s/%s: %w: %w", workspace, name, ErrNotFound, err)
		}
		return Object{}, err
	}
	if len(res) != 1 || len(res[0].Data) != 1 {
		return Object{}, fmt.Errorf("object %s/%s: unexpected get_objects2 result shape", workspace, name)
	}
	return res[0].Data[0], nil
}

// isMissing recognises the workspace's "no such object/workspace" errors.
func isMissing(err error) bool {
	var rerr *RPCError
	if !errors.As(err, &rerr) {
		return false
	}
	msg := strings.ToLower(rerr.Message)
	return strings.Contains(msg, "no object with") ||
		strings.Contains(msg, "no workspace with") ||
		strings.Contains(msg, "is deleted")
}
