package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-signals/internal/alert"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/outbox"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds the tries per channel and alert.
const DefaultMaxAttempts = 3

// Router fans alerts out to every channel, skipping alerts already delivered.
type Router struct {
	channels    []Channel
	store       outbox.Store
	log         *logger.Logger
	maxAttempts int
	newBackOff  func() backoff.BackOff
	now         func() time.Time
}

// NewRouter creates a router. maxAttempts below one uses DefaultMaxAttempts.
func NewRouter(store outbox.Store, log *logger.Logger, maxAttempts int, channels ...Channel) *Router {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Router{
		channels:    channels,
		store:       store,
		log:         log,
		maxAttempts: maxAttempts,
		newBackOff:  defaultBackOff,
		now:         time.Now,
	}
}

// WithBackOff replaces the retry schedule.
func (r *Router) WithBackOff(newBackOff func() backoff.BackOff) *Router {
	r.newBackOff = newBackOff

	return r
}

// defaultBackOff waits 1s, 2s, 4s... up to a minute, with jitter.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	return b
}

// Channels returns the names of the configured channels.
func (r *Router) Channels() []string {
	names := make([]string, 0, len(r.channels))
	for _, ch := range r.channels {
		names = append(names, ch.Name())
	}

	return names
}

// Dispatch delivers every alert not yet sent and returns how many alerts reached
// at least one channel. Channel failures are logged to the outbox and do not stop
// the dispatch; store failures and cancellation do.
func (r *Router) Dispatch(ctx context.Context, alerts []types.Alert) (int, error) {
	if len(r.channels) == 0 {
		return 0, errors.New(errors.ErrCodeChannelUnavailable, "no notification channel configured")
	}

	sent := 0

	for _, a := range alerts {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		hash := alert.Hash(a)

		already, err := r.store.AlreadySent(ctx, hash)
		if err != nil {
			return sent, err
		}

		if already {
			r.log.Debug("Skipping alert already sent",
				zap.String("ticker", a.Ticker),
				zap.String("event", string(a.EventType)),
				zap.String("hash", hash),
			)

			continue
		}

		delivered, err := r.deliver(ctx, a, hash)
		if err != nil {
			return sent, err
		}

		if delivered {
			sent++
		}
	}

	return sent, nil
}

func (r *Router) deliver(ctx context.Context, a types.Alert, hash string) (bool, error) {
	delivered := false

	for _, ch := range r.channels {
		resp, retries, sendErr := r.send(ctx, ch, a)

		status := outbox.StatusSent
		body := resp.Body

		switch {
		case sendErr != nil:
			status = outbox.StatusError
			body = sendErr.Error()
		case resp.Partial:
			status = outbox.StatusPartial
		}

		err := r.store.LogAttempt(ctx, outbox.Attempt{
			Time:       r.now(),
			Channel:    ch.Name(),
			Ticker:     a.Ticker,
			Event:      a.EventType,
			Hash:       hash,
			Status:     status,
			RespCode:   resp.Code,
			RespBody:   body,
			RetryCount: retries,
		})
		if err != nil {
			return delivered, err
		}

		if sendErr != nil {
			r.log.Warn("Failed to deliver alert",
				zap.String("channel", ch.Name()),
				zap.String("ticker", a.Ticker),
				zap.String("event", string(a.EventType)),
				zap.Int("retries", retries),
				zap.Error(sendErr),
			)

			continue
		}

		if err := r.store.MarkSent(ctx, hash, a, ch.Name()); err != nil {
			return delivered, err
		}

		delivered = true
	}

	return delivered, nil
}

// send calls the channel until it succeeds, fails permanently or runs out of attempts.
// It returns the number of retries made.
func (r *Router) send(ctx context.Context, ch Channel, a types.Alert) (Response, int, error) {
	var (
		resp     Response
		attempts int
	)

	policy := &retryAfterBackOff{BackOff: r.newBackOff()}

	operation := func() error {
		attempts++

		res, err := ch.Send(ctx, a)
		resp = res

		if err == nil {
			return nil
		}

		var transient *TransientError
		if errors.As(err, &transient) {
			policy.after = transient.RetryAfter

			return err
		}

		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.maxAttempts-1)), ctx))

	return resp, attempts - 1, err
}

// retryAfterBackOff waits at least as long as the remote side asked for.
type retryAfterBackOff struct {
	backoff.BackOff
	after time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}

	if b.after > next {
		next = b.after
	}

	b.after = 0

	return next
}

func (b *retryAfterBackOff) Reset() {
	b.after = 0
	b.BackOff.Reset()
}
