// cmd/root.go

// Package cmd is the jgipush command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/browser"
	"github.com/kbase/jgipush/internal/config"
	"github.com/kbase/jgipush/internal/inbox"
	"github.com/kbase/jgipush/internal/network"
	"github.com/kbase/jgipush/internal/observability"
	"github.com/kbase/jgipush/internal/oracle"
	"github.com/kbase/jgipush/internal/poll"
	"github.com/kbase/jgipush/internal/store"
)

// verifier is the part of oracle.Verifier the push command uses.
type verifier interface {
	VerifyPushed(ctx context.Context, workspace, object string, wantVersion int) (oracle.PushedObject, error)
	VerifyAbsent(ctx context.Context, workspace, object string) error
}

// app carries the loaded configuration and the constructors of everything
// that talks to the outside world, so tests can swap them out.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	clock   poll.Clock

	browserFactory func(cfg *config.Config, logger *zap.Logger) browser.Factory
	openStore      func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, func(), error)
	newVerifier    func(cfg *config.Config, logger *zap.Logger) verifier
	newMailbox     func(cfg *config.Config, logger *zap.Logger) inbox.Mailbox
}

func newApp() *app {
	return &app{
		clock:          poll.RealClock{},
		browserFactory: cdpFactory,
		openStore:      openPostgresStore,
		newVerifier: func(cfg *config.Config, logger *zap.Logger) verifier {
			return oracle.NewVerifier(oracle.Config{
				WorkspaceURL: cfg.Oracle.WorkspaceURL,
				HandleURL:    cfg.Oracle.HandleURL,
				ShockURL:     cfg.Oracle.ShockURL,
				Token:        cfg.Oracle.Token,
				RetryMax:     cfg.Oracle.RetryMax,
				Timeout:      cfg.Oracle.Timeout,
			}, logger)
		},
		newMailbox: func(cfg *config.Config, logger *zap.Logger) inbox.Mailbox {
			return inbox.NewHTTPMailbox(cfg.Inbox.URL, network.NewClient(network.NewClientConfig(), logger), logger)
		},
	}
}

func cdpFactory(cfg *config.Config, logger *zap.Logger) browser.Factory {
	return func(ctx context.Context) (browser.Client, error) {
		c, err := browser.NewCDPClient(ctx, cfg.CDPOptions(), logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func openPostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// poller builds the poller every session of a command shares.
func (a *app) poller() *poll.Poller {
	return poll.New(a.logger, poll.WithInterval(a.cfg.Session.PollInterval), poll.WithClock(a.clock))
}

// loadConfig runs before every command but version.
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.New(), a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	if a.logger == nil {
		observability.InitializeLogger(cfg.Logger)
		a.logger = observability.GetLogger()
	}
	a.logger.Debug("Loaded configuration.", zap.String("command", cmd.Name()), zap.String("version", Version))
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "jgipush",
		Short:             "Drive pushes from the JGI genome portal to KBase",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./jgipush.yaml, then ~/.jgipush.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newPushCmd(a),
		newListCmd(a),
		newDiscoverCmd(a),
		newMassPushCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return 0
	}
	if a.logger != nil {
		a.logger.Error("Command failed.", zap.Error(err))
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
