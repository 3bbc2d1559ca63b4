// Command slotwatch watches and books shared VDI slots from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vditaxi/config"
	"vditaxi/portal"
	"vditaxi/slotsync"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Client
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		apiURL, token string
		poll          time.Duration
		verbose       bool
	)

	root := &cobra.Command{
		Use:           "slotwatch",
		Short:         "Watch and book shared VDI slots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("api") {
				cfg.APIURL = apiURL
			}
			if flags.Changed("token") {
				cfg.Token = token
			}
			if flags.Changed("poll") {
				cfg.PollInterval = poll
			}
			a.cfg = cfg

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&apiURL, "api", "", "portal API base URL (default $VDI_API_URL)")
	root.PersistentFlags().StringVar(&token, "token", "", "access token (default $VDI_TOKEN)")
	root.PersistentFlags().DurationVar(&poll, "poll", 0, "poll interval (default $VDI_POLL_INTERVAL)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newLoginCmd(a))
	root.AddCommand(newSlotsCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newOccupyCmd(a))
	root.AddCommand(newReleaseCmd(a))
	root.AddCommand(newQueueCmd(a))
	root.AddCommand(newBookingCmd(a))
	root.AddCommand(newFavoriteCmd(a))
	return root
}

// client returns a portal client, requiring a token unless anonymous.
func (a *app) client(anonymous bool) (*portal.Client, error) {
	if !anonymous && a.cfg.Token == "" {
		return nil, errors.New("no token: run `slotwatch login <user>` and export VDI_TOKEN")
	}
	return portal.New(a.cfg.APIURL, portal.WithToken(a.cfg.Token))
}

// synchronizer starts a synchronizer. One-shot commands run without the
// push connection; the caller must Close it.
func (a *app) synchronizer(ctx context.Context, push bool) (*slotsync.Synchronizer, error) {
	c, err := a.client(false)
	if err != nil {
		return nil, err
	}
	s, err := slotsync.New(slotsync.Config{
		API:               c,
		Logger:            a.logger,
		PollInterval:      a.cfg.PollInterval,
		ReconnectDelay:    a.cfg.ReconnectDelay,
		HeartbeatInterval: a.cfg.HeartbeatInterval,
		DisablePush:       !push,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Slots().Err; err != nil {
		s.Close()
		return nil, fmt.Errorf("load slots: %w", err)
	}
	return s, nil
}
