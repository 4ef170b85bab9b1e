// Package outbox records which alerts were delivered and keeps a log of every
// delivery attempt.
package outbox

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/types"
)

// Status is the outcome of one delivery attempt on one channel.
type Status string

const (
	StatusSent    Status = "SENT"
	StatusPartial Status = "PARTIAL"
	StatusError   Status = "ERROR"
)

// MaxBodyLength caps the stored response body.
const MaxBodyLength = 768

// Attempt is one row of the outbox log.
type Attempt struct {
	ID         string               `json:"id"`
	Time       time.Time            `json:"ts"`
	Channel    string               `json:"channel"`
	Ticker     string               `json:"ticker"`
	Event      types.AlertEventType `json:"event"`
	Hash       string               `json:"hash"`
	Status     Status               `json:"status"`
	RespCode   int                  `json:"resp_code"`
	RespBody   string               `json:"resp_body"`
	RetryCount int                  `json:"retry_count"`
}

// SentRecord is what the store keeps for a delivered alert.
type SentRecord struct {
	Hash        string               `json:"hash"`
	Ticker      string               `json:"ticker"`
	Event       types.AlertEventType `json:"event"`
	Window      string               `json:"window"`
	FirstSentAt time.Time            `json:"first_sent_ts"`
	Channels    string               `json:"channels"`
}

// Store is the dedupe and outbox backend.
type Store interface {
	// AlreadySent reports whether an alert with this hash was delivered before.
	AlreadySent(ctx context.Context, hash string) (bool, error)
	// MarkSent records the delivery on channel. A second call for the same hash keeps
	// the first timestamp and adds the channel to the list.
	MarkSent(ctx context.Context, hash string, alert types.Alert, channel string) error
	// LogAttempt appends an attempt to the outbox log.
	LogAttempt(ctx context.Context, attempt Attempt) error
	Close() error
}

// TrimBody cuts a response body to MaxBodyLength runes.
func TrimBody(body string) string {
	runes := []rune(body)
	if len(runes) <= MaxBodyLength {
		return body
	}

	return string(runes[:MaxBodyLength])
}

// MergeChannels adds channel to a comma separated list, keeping it sorted and unique.
func MergeChannels(existing, channel string) string {
	set := make(map[string]struct{})

	for _, c := range strings.Split(existing+","+channel, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			set[c] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}

	sort.Strings(out)

	return strings.Join(out, ",")
}
