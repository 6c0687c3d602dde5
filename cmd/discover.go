// cmd/discover.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/pushable"
	"github.com/kbase/jgipush/internal/runner"
)

type discoverFlags struct {
	organismsFile string
	out           string
	limit         int
}

func newDiscoverCmd(a *app) *cobra.Command {
	var f discoverFlags
	cmd := &cobra.Command{
		Use:   "discover [organism...]",
		Short: "Build a pushable file list from organism pages",
		Long: `Visits every organism and writes one line per file in the configured groups
(runner.groups) as workspace<TAB>organism<TAB>group<TAB>file. The output feeds masspush.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDiscover(cmd.Context(), cmd.OutOrStdout(), args, f)
		},
	}
	cmd.Flags().StringVar(&f.organismsFile, "organisms", "", "file with one organism code per line")
	cmd.Flags().StringVar(&f.out, "out", "", "write the file list here instead of stdout")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "stop once this many files are found (0 means no limit)")
	return cmd
}

func (a *app) runDiscover(ctx context.Context, stdout io.Writer, args []string, f discoverFlags) error {
	codes := append([]string(nil), args...)
	if f.organismsFile != "" {
		more, err := readCodes(f.organismsFile)
		if err != nil {
			return err
		}
		codes = append(codes, more...)
	}
	if len(codes) == 0 {
		return errors.New("no organisms given, pass codes as arguments or --organisms")
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

	files, derr := runner.Discover(ctx, client, codes, runner.DiscoverOptions{
		Seed:        a.cfg.Runner.Seed,
		JGI:         a.cfg.JGICredentials(),
		Groups:      a.cfg.Runner.Groups,
		Limit:       f.limit,
		ListRetries: a.cfg.Runner.ListRetries,
		Session:     opts,
	}, a.poller(), a.logger)
	if derr != nil && len(files) == 0 {
		return derr
	}

	// Whatever was found before a failure is still written.
	out := stdout
	if f.out != "" {
		fh, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", f.out, err)
		}
		defer fh.Close()
		out = fh
	}
	if err := pushable.Write(out, files); err != nil {
		return err
	}
	a.logger.Info("Discovery finished.", zap.Int("organisms", len(codes)), zap.Int("files", len(files)))
	return derr
}

// readCodes reads organism codes, one per line. Blank lines and lines starting
// with # are skipped.
func readCodes(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open organism list: %w", err)
	}
	defer fh.Close()

	var codes []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		codes = append(codes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organism list: %w", err)
	}
	return codes, nil
}
