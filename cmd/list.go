// cmd/list.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kbase/jgipush/internal/organism"
)

func newListCmd(a *app) *cobra.Command {
	var code, group string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the file groups of an organism, or the files of one group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runList(cmd.Context(), cmd.OutOrStdout(), code, group)
		},
	}
	cmd.Flags().StringVarP(&code, "organism", "o", "", "organism code")
	cmd.Flags().StringVarP(&group, "group", "g", "", "list the files of this group")
	_ = cmd.MarkFlagRequired("organism")
	return cmd
}

func (a *app) runList(ctx context.Context, out io.Writer, code, group string) error {
	opts, err := a.cfg.SessionOptions()
	if err != nil {
		return err
	}
	client, err := a.browserFactory(a.cfg, a.logger)(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer closeClient(ctx, client, a.logger)

	s, err := organism.Open(ctx, client, code, a.cfg.JGICredentials(), opts, a.poller(), a.logger)
	if err != nil {
		return err
	}
	var names []string
	if group == "" {
		names, err = s.ListFileGroups(ctx)
	} else {
		names, err = s.ListFiles(ctx, group)
	}
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return nil
}
