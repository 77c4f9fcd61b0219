package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"pressiotrack/internal/metrics"
)

const (
	defaultMaxTries        = 3
	defaultSendTimeout     = 20 * time.Second
	defaultInitialInterval = 500 * time.Millisecond

	maxRetryInterval = 5 * time.Second
)

// Notifier delivers messages with retry. Dispatch is fire-and-forget: the
// caller never learns the outcome, failures are logged and counted.
type Notifier struct {
	sender  Sender
	log     *slog.Logger
	metrics *metrics.Metrics

	maxTries        uint
	timeout         time.Duration
	initialInterval time.Duration

	wg sync.WaitGroup
}

type NotifierOption func(*Notifier)

func WithMaxTries(n uint) NotifierOption {
	return func(nt *Notifier) {
		if n > 0 {
			nt.maxTries = n
		}
	}
}

func WithSendTimeout(d time.Duration) NotifierOption {
	return func(nt *Notifier) {
		if d > 0 {
			nt.timeout = d
		}
	}
}

func WithInitialInterval(d time.Duration) NotifierOption {
	return func(nt *Notifier) {
		nt.initialInterval = d
	}
}

func NewNotifier(sender Sender, lgr *slog.Logger, m *metrics.Metrics, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		sender:          sender,
		log:             lgr,
		metrics:         m,
		maxTries:        defaultMaxTries,
		timeout:         defaultSendTimeout,
		initialInterval: defaultInitialInterval,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers msg, retrying with exponential backoff, and reports the
// final error. Every attempt gets its own timeout so a hung connection does
// not use up the retries.
func (n *Notifier) Send(ctx context.Context, kind string, msg Message) error {
	const op = "mail.Notifier.Send"

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.initialInterval
	policy.MaxInterval = maxRetryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		if err := n.sender.Send(attemptCtx, msg); err != nil {
			n.log.Warn("email attempt failed",
				slog.String("kind", kind),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(n.maxTries),
		backoff.WithMaxElapsedTime(n.budget()),
	)
	if err != nil {
		n.metrics.Notification(kind, metrics.ResultFailed)
		return fmt.Errorf("%s: %s after %d attempts: %w", op, kind, attempt, err)
	}

	n.metrics.Notification(kind, metrics.ResultSent)
	return nil
}

// budget bounds the whole retry loop: every attempt may run to its timeout
// and wait the longest backoff interval.
func (n *Notifier) budget() time.Duration {
	return time.Duration(n.maxTries) * (n.timeout + maxRetryInterval)
}

// Dispatch sends msg in a detached goroutine. The request context's values
// are kept but its cancellation is not, so the send outlives the response.
func (n *Notifier) Dispatch(ctx context.Context, kind string, msg Message) {
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		if err := n.Send(ctx, kind, msg); err != nil {
			n.log.Error("failed to deliver email",
				slog.String("kind", kind),
				slog.String("to", msg.To),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until every dispatched message finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
