package chat

import (
	"context"
	"log"
	"time"
)

const DefaultSweepInterval = 10 * time.Minute

// StartExpirySweeper periodically deactivates expired sessions in the
// background. Expiry is also enforced lazily on access, so the sweeper
// only keeps the table tidy between requests.
func (s *Store) StartExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Store) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				log.Printf("sweep expired sessions error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("deactivated %d expired sessions", n)
			}
		}
	}
}
