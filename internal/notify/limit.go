package notify

import (
	"context"

	"golang.org/x/time/rate"
)

type limited struct {
	next    Notifier
	limiter *rate.Limiter
}

// Limited wraps a channel with a token bucket so bursts of due items do
// not trip provider rate limits. Send blocks until a token is available
// or ctx expires.
func Limited(next Notifier, perMin int) Notifier {
	if perMin <= 0 {
		return next
	}
	// Burst of one minute's allowance, so a cold start can flush a backlog.
	return &limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
	}
}

func (l *limited) Send(ctx context.Context, recipient, subject, body string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.next.Send(ctx, recipient, subject, body)
}
