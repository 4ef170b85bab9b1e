// Package notify delivers alerts over Telegram, SMTP email and the log.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/types"
)

// Response is what a channel reports back for one delivery.
type Response struct {
	Code int
	Body string
	// Partial is set when only some recipients of the channel were reached.
	Partial bool
}

// Channel is a delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert types.Alert) (Response, error)
}

// TransientError marks a failure worth retrying. RetryAfter, when set, is the
// minimum wait the remote side asked for.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter)
	}

	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}
