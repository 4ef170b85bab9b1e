package types

import (
	"time"

	"github.com/moznion/go-optional"
)

type AlertEventType string

const (
	AlertEventBuyNew AlertEventType = "BUY_NEW"
	AlertEventSell   AlertEventType = "SELL"
	AlertEventRisk   AlertEventType = "RISK"
	AlertEventTP     AlertEventType = "TP"
	AlertEventSL     AlertEventType = "SL"
	AlertEventInfo   AlertEventType = "INFO"
)

// Alert is a notification-ready record derived from a trade or a screener trigger.
type Alert struct {
	Ticker    string                   `json:"ticker"`
	EventType AlertEventType           `json:"event_type"`
	Price     optional.Option[float64] `json:"price"`
	// When is a short human label for the slot, a date (2006-01-02) or a clock time (15:04).
	When string `json:"when"`
	// SlotStart and SlotEnd bound the time window the alert belongs to.
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
	Explain   string    `json:"explain"`
}

// WindowLabel renders the slot window as start|end in RFC3339.
func (a Alert) WindowLabel() string {
	return a.SlotStart.Format(time.RFC3339) + "|" + a.SlotEnd.Format(time.RFC3339)
}
