// cmd/push.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/browser"
	"github.com/kbase/jgipush/internal/inbox"
	"github.com/kbase/jgipush/internal/oracle"
	"github.com/kbase/jgipush/internal/organism"
	"github.com/kbase/jgipush/internal/poll"
)

type pushFlags struct {
	organism      string
	files         []string
	verify        bool
	verifyTimeout time.Duration
	notifySubject string
}

func newPushCmd(a *app) *cobra.Command {
	var f pushFlags
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Select files on an organism page and push them to KBase",
		Long: `Selects every --file on the organism page, pushes the selection to KBase and
checks the portal's report of accepted and rejected files against expectation.
A file is written as "group/file"; append "!" to expect the portal to reject it.`,
		Example: `  jgipush push --organism BlaspoFA --file "Raw Data/reads.fastq" --file "Raw Data/notes.pdf!"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPush(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVarP(&f.organism, "organism", "o", "", "organism code")
	cmd.Flags().StringArrayVarP(&f.files, "file", "f", nil, `file to push as "group/file", "!" suffix expects rejection (repeatable)`)
	cmd.Flags().BoolVar(&f.verify, "verify", false, "check the pushed objects in the KBase workspace")
	cmd.Flags().DurationVar(&f.verifyTimeout, "verify-timeout", 10*time.Minute, "how long to wait for pushed objects to appear")
	cmd.Flags().StringVar(&f.notifySubject, "notify-subject", "", "wait for a notification email with this subject")
	_ = cmd.MarkFlagRequired("organism")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) runPush(ctx context.Context, out io.Writer, f pushFlags) error {
	locs := make([]organism.FileLocation, 0, len(f.files))
	for _, s := range f.files {
		loc, err := organism.ParseLocation(s)
		if err != nil {
			return err
		}
		locs = append(locs, loc)
	}
	kbase := a.cfg.KBaseCredentials()
	if f.verify && kbase == nil {
		return errors.New("--verify needs credentials.kbase_user to find the workspace")
	}
	opts, err := a.cfg.SessionOptions()
	if err != nil {
		return err
	}

	client, err := a.browserFactory(a.cfg, a.logger)(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer closeClient(ctx, client, a.logger)

	poller := a.poller()
	s, err := organism.Open(ctx, client, f.organism, a.cfg.JGICredentials(), opts, poller, a.logger)
	if err != nil {
		return err
	}
	for _, loc := range locs {
		if err := s.SelectFile(ctx, loc, true); err != nil {
			return err
		}
	}
	outcome, err := s.Push(ctx, kbase)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "accepted: %s\n", strings.Join(outcome.Accepted.Sorted(), ", "))
	fmt.Fprintf(out, "rejected: %s\n", strings.Join(outcome.Rejected.Sorted(), ", "))

	if f.verify {
		ws, err := s.WorkspaceName(kbase.User)
		if err != nil {
			return err
		}
		if err := a.verifyPush(ctx, out, poller, ws, outcome, f.verifyTimeout); err != nil {
			return err
		}
	}
	if f.notifySubject != "" {
		msg, err := inbox.AwaitMessage(ctx, a.newMailbox(a.cfg, a.logger), poller, f.notifySubject, a.cfg.Inbox.Timeout)
		if err != nil {
			return fmt.Errorf("no notification email: %w", err)
		}
		fmt.Fprintf(out, "notified: %s (%s)\n", msg.Subject, msg.Created.Format(time.RFC3339))
	}
	return nil
}

// verifyPush waits for every accepted file to show up as an object in ws and
// checks that no rejected file did.
func (a *app) verifyPush(ctx context.Context, out io.Writer, poller *poll.Poller, ws string, outcome organism.PushOutcome, timeout time.Duration) error {
	v := a.newVerifier(a.cfg, a.logger)
	var errs []error
	for _, name := range outcome.Accepted.Sorted() {
		var obj oracle.PushedObject
		err := poller.Until(ctx, "object "+name+" in "+ws, timeout, func(ctx context.Context) (bool, error) {
			var err error
			obj, err = v.VerifyPushed(ctx, ws, name, 0)
			if errors.Is(err, oracle.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		}, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Fprintf(out, "verified: %s/%s version %d, %d node(s)\n", ws, name, obj.Info.Version, len(obj.Nodes))
	}
	for _, name := range outcome.Rejected.Sorted() {
		if err := v.VerifyAbsent(ctx, ws, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeClient(ctx context.Context, client browser.Client, logger *zap.Logger) {
	if err := client.Close(browser.Detach(ctx)); err != nil {
		logger.Warn("Failed to close browser.", zap.Error(err))
	}
}
