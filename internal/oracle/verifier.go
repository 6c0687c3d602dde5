// internal/oracle/verifier.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/network"
)

// Config locates the services and carries the auth token.
type Config struct {
	WorkspaceURL string
	HandleURL    string
	ShockURL     string
	Token        string
	RetryMax     int
	Timeout      time.Duration
}

// PushedObject summarises what a push left behind in KBase.
type PushedObject struct {
	Info    ObjectInfo
	Handles []Handle
	Nodes   []Node
}

// Verifier asserts on the outcome of a push.
type Verifier struct {
	ws     *WorkspaceClient
	handle *HandleClient
	shock  *ShockClient
	logger *zap.Logger
}

// NewVerifier wires the three clients over one retrying HTTP client.
func NewVerifier(cfg Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("oracle")
	hcfg := network.NewClientConfig()
	if cfg.RetryMax > 0 {
		hcfg.RetryMax = cfg.RetryMax
	}
	if cfg.Timeout > 0 {
		hcfg.RequestTimeout = cfg.Timeout
	}
	hc := network.NewClient(hcfg, logger)
	return &Verifier{
		ws:     NewWorkspaceClient(cfg.WorkspaceURL, cfg.Token, hc, logger),
		handle: NewHandleClient(cfg.HandleURL, cfg.Token, hc, logger),
		shock:  NewShockClient(cfg.ShockURL, cfg.Token, hc, logger),
		logger: logger,
	}
}

// VerifyPushed checks that object exists in workspace (at version wantVersion
// when it is > 0), that every handle it references resolves, and that each
// handle's shock node exists with the checksum the handle recorded.
func (v *Verifier) VerifyPushed(ctx context.Context, workspace, object string, wantVersion int) (PushedObject, error) {
	obj, err := v.ws.GetObject(ctx, workspace, object, 0)
	if err != nil {
		return PushedObject{}, err
	}
	out := PushedObject{Info: obj.Info}
	if wantVersion > 0 && obj.Info.Version != wantVersion {
		return out, fmt.Errorf("object %s/%s is at version %d, expected %d", workspace, object, obj.Info.Version, wantVersion)
	}

	hids := obj.HandleIDs()
	if len(hids) == 0 {
		return out, fmt.Errorf("object %s/%s references no file handles", workspace, object)
	}
	out.Handles, err = v.handle.HIDsToHandles(ctx, hids...)
	if err != nil {
		return out, fmt.Errorf("object %s/%s: %w", workspace, object, err)
	}
	for _, h := range out.Handles {
		node, err := v.shock.GetNode(ctx, h.NodeID)
		if err != nil {
			return out, fmt.Errorf("handle %s: %w", h.HID, err)
		}
		if h.RemoteMD5 != "" && node.MD5() != h.RemoteMD5 {
			return out, fmt.Errorf("node %s md5 %s does not match handle %s md5 %s", node.ID, node.MD5(), h.HID, h.RemoteMD5)
		}
		out.Nodes = append(out.Nodes, node)
	}
	v.logger.Info("Verified pushed object.",
		zap.String("workspace", workspace),
		zap.String("object", object),
		zap.Int("version", obj.Info.Version),
		zap.Int("nodes", len(out.Nodes)))
	return out, nil
}

// VerifyAbsent checks that a rejected file produced no object.
func (v *Verifier) VerifyAbsent(ctx context.Context, workspace, object string) error {
	obj, err := v.ws.GetObject(ctx, workspace, object, 0)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("object %s/%s exists (version %d) but the file was rejected", workspace, object, obj.Info.Version)
}
