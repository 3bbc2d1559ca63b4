package main

import (
	"bufio"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vditaxi/models"
	"vditaxi/portal"
)

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and print an export line for VDI_TOKEN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				_, _ = fmt.Fprint(cmd.ErrOrStderr(), "password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			c, err := a.client(true)
			if err != nil {
				return err
			}
			res, err := c.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "logged in as %s\n", res.User.Name)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "export VDI_TOKEN=%s\n", res.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	return cmd
}

func newSlotsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Print the slot board once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderBoard(boardOf(s, time.Now())))
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the slot board current until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := a.synchronizer(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, renderBoard(boardOf(s, time.Now())))
			// The elapsed-time column moves even when nothing else does.
			tick := time.NewTicker(time.Minute)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-s.Changes():
				case <-tick.C:
				}
				_, _ = fmt.Fprintln(out, renderBoard(boardOf(s, time.Now())))
			}
		},
	}
}

func newOccupyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "occupy <slot>",
		Short: "Claim a free slot and print its connect URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Occupy(cmd.Context(), args[0])
			if portal.IsConflict(err) {
				if slot, ok := s.Slot(args[0]); ok {
					return fmt.Errorf("%s is busy (%s); try `slotwatch queue join %s`", args[0], slot.OccupantName, args[0])
				}
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %d on %s\nconnect: %s\n", res.SessionID, res.SlotID, res.ConnectURL)
			return nil
		},
	}
}

func newReleaseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "release <slot>",
		Short: "End your session on a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Release(cmd.Context(), args[0])
			if portal.IsNotFound(err) {
				return fmt.Errorf("no active session of yours on %s (it may have timed out)", args[0])
			}
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("released %s (session %d)", args[0], res.SessionID)
			if res.NextInQueue != "" {
				msg += ", next up: " + res.NextInQueue
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newQueueCmd(a *app) *cobra.Command {
	queue := &cobra.Command{Use: "queue", Short: "Wait in line for a busy slot"}

	queue.AddCommand(&cobra.Command{
		Use:   "join <slot>",
		Short: "Join the queue of a busy slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			pos, err := s.JoinQueue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "position %d of %d for %s\n", pos.Position, pos.TotalInQueue, pos.SlotID)
			return nil
		},
	})
	queue.AddCommand(&cobra.Command{
		Use:   "leave <slot>",
		Short: "Leave a slot's queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.LeaveQueue(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "left the queue for %s\n", args[0])
			return nil
		},
	})
	return queue
}

func newBookingCmd(a *app) *cobra.Command {
	booking := &cobra.Command{Use: "booking", Short: "Schedule future sessions"}

	booking.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your upcoming bookings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderBookings(s.Bookings().Data))
			return nil
		},
	})

	var date, at string
	var minutes int
	create := &cobra.Command{
		Use:   "create <slot>",
		Short: "Book a slot for a date and time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			b, err := s.CreateBooking(cmd.Context(), models.BookingRequest{
				SlotID:      args[0],
				Date:        date,
				StartTime:   at,
				DurationMin: minutes,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "booked %s on %s at %s for %d min (id %d)\n", b.SlotID, b.Date, b.StartTime, b.DurationMin, b.ID)
			return nil
		},
	}
	create.Flags().StringVar(&date, "date", time.Now().Format("2006-01-02"), "date, YYYY-MM-DD")
	create.Flags().StringVar(&at, "at", "", "start time, HH:MM")
	create.Flags().IntVar(&minutes, "minutes", models.DefaultBookingMinutes, "duration in minutes")
	_ = create.MarkFlagRequired("at")
	booking.AddCommand(create)

	booking.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("booking id %q: %w", args[0], err)
			}
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.CancelBooking(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cancelled booking %d\n", id)
			return nil
		},
	})
	return booking
}

func newFavoriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <slot>",
		Short: "Star or unstar a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.synchronizer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			p, err := s.ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "favorites: %s\n", strings.Join(p.Favorites, ", "))
			return nil
		},
	}
}
