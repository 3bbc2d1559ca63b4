package slots

import (
	"context"
	"log"
	"time"

	"vditaxi/models"
)

// Reap ends every session that has run longer than max and returns
// how many it ended.
func (s *Service) Reap(ctx context.Context, max time.Duration) int {
	active, err := s.Store.ActiveSessions(ctx)
	if err != nil {
		log.Printf("[reaper] list sessions: %v", err)
		return 0
	}
	now := s.Clock.Now()
	n := 0
	for _, sess := range active {
		if now.Sub(sess.StartedAt) < max {
			continue
		}
		if _, err := s.End(ctx, sess, models.EndTimeout); err != nil {
			// Released concurrently; nothing to do.
			continue
		}
		n++
	}
	return n
}

// RunReaper calls Reap every interval until ctx is done.
func (s *Service) RunReaper(ctx context.Context, interval, max time.Duration) {
	t := s.Clock.NewTicker(interval)
	defer t.Stop()
	log.Printf("⏱️ Session reaper running every %s (max %s)", interval, max)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Reap(ctx, max); n > 0 {
				log.Printf("[reaper] ended %d expired session(s)", n)
			}
		}
	}
}
