// internal/runner/discover.go

// Package runner drives many organism pages: discovering pushable files and
// pushing them in parallel from several independent browsers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/browser"
	"github.com/kbase/jgipush/internal/organism"
	"github.com/kbase/jgipush/internal/poll"
	"github.com/kbase/jgipush/internal/pushable"
)

// Groups listed by Discover when none are configured.
var DefaultGroups = []string{"QC Filtered Raw Data", "Raw Data"}

// DefaultListRetries is how often a timed out file listing is retried.
const DefaultListRetries = 2

// DiscoverOptions controls Discover.
type DiscoverOptions struct {
	// Seed is opened signed in before anything else when JGI is set, so the
	// client carries the sign-on cookie for every later page.
	Seed string
	JGI  *organism.Credentials

	Groups      []string
	Limit       int
	ListRetries int
	Session     organism.Options
}

// Discover visits each organism with client and collects the files of the
// configured groups. Organisms the user may not see are skipped. Discovery
// stops after the organism that brought the total to Limit, when Limit > 0.
func Discover(ctx context.Context, client browser.Client, organisms []string, opts DiscoverOptions, poller *poll.Poller, logger *zap.Logger) ([]pushable.File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("discover")
	groups := opts.Groups
	if len(groups) == 0 {
		groups = DefaultGroups
	}
	retries := opts.ListRetries
	if retries <= 0 {
		retries = DefaultListRetries
	}

	if opts.JGI != nil && opts.Seed != "" {
		if _, err := organism.Open(ctx, client, opts.Seed, opts.JGI, opts.Session, poller, logger); err != nil {
			return nil, fmt.Errorf("failed to sign on via seed organism %s: %w", opts.Seed, err)
		}
	}

	var found []pushable.File
	for _, code := range organisms {
		if opts.Limit > 0 && len(found) >= opts.Limit {
			break
		}
		files, err := discoverOrganism(ctx, client, code, groups, retries, opts.Session, poller, logger)
		if errors.Is(err, organism.ErrPermission) {
			logger.Info("No permission for organism, skipping.", zap.String("organism", code))
			continue
		}
		if err != nil {
			return found, err
		}
		found = append(found, files...)
		logger.Info("Discovered files.", zap.String("organism", code), zap.Int("files", len(files)), zap.Int("total", len(found)))
	}
	return found, nil
}

func discoverOrganism(ctx context.Context, client browser.Client, code string, groups []string, retries int, sopts organism.Options, poller *poll.Poller, logger *zap.Logger) ([]pushable.File, error) {
	s, err := organism.Open(ctx, client, code, nil, sopts, poller, logger)
	if err != nil {
		return nil, err
	}
	present, err := s.ListFileGroups(ctx)
	if errors.Is(err, organism.ErrNoFileTree) {
		logger.Info("Organism has no file tree, skipping.", zap.String("organism", code))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ws, err := s.WorkspaceName("")
	if err != nil {
		return nil, err
	}

	// A timed out listing leaves the session unusable, so a retry reopens the page.
	list := func(group string) ([]string, error) {
		for attempt := 0; ; attempt++ {
			names, err := s.ListFiles(ctx, group)
			if err == nil {
				return names, nil
			}
			var terr *organism.TimeoutError
			if !errors.As(err, &terr) || attempt >= retries {
				return nil, fmt.Errorf("failed to list files of %s in %s: %w", group, code, err)
			}
			logger.Warn("Retrying file listing.", zap.String("organism", code), zap.String("group", group), zap.Int("attempt", attempt+1))
			if s, err = organism.Open(ctx, client, code, nil, sopts, poller, logger); err != nil {
				return nil, err
			}
		}
	}

	var files []pushable.File
	for _, g := range groups {
		if !slices.Contains(present, g) {
			continue
		}
		names, err := list(g)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			files = append(files, pushable.File{Workspace: ws, Organism: code, Group: g, Name: n})
		}
	}
	return files, nil
}
