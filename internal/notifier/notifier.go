// Package notifier wraps the push channel. Delivery is at-least-once from
// the channel's point of view; a failed send is terminal for that single
// notification and is never retried here.
package notifier

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	logx "remindbot/pkg/logx"
)

// Sender pushes one text message to one owner.
type Sender interface {
	Send(ctx context.Context, ownerID string, text string) error
}

// Config controls the rate-limited notifier.
type Config struct {
	RatePerSec int
}

// Service decorates a transport-level Sender with rate limiting and
// structured logging. The limiter waits (it does not drop): reminder pushes
// are low-volume and each runs on its own timer goroutine.
type Service struct {
	sender  Sender
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Service{
		sender:  sender,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (s *Service) Send(ctx context.Context, ownerID string, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if err := s.sender.Send(ctx, ownerID, text); err != nil {
		s.log.Warn("notification send failed", logx.String("owner", ownerID), logx.Err(err))
		return err
	}
	s.log.Debug("notification sent", logx.String("owner", ownerID), logx.Int("len", len(text)))
	return nil
}
