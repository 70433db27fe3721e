// Package activation defines the activation lifecycle for deals and the
// store contract that guarantees each (deal, game) pair is triggered at most
// once. The only write path is the atomic insert-if-absent in
// [Store.TryActivate]; nothing else may set status directly.
package activation

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of an activation. Expired and Reversed are
// terminal; an activation never returns to Triggered.
type Status string

const (
	// StatusPending is reserved for flows that stage an activation before
	// the triggering transition; TryActivate inserts rows as Triggered.
	StatusPending   Status = "pending"
	StatusTriggered Status = "triggered"
	StatusExpired   Status = "expired"
	StatusReversed  Status = "reversed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusReversed
}

var (
	// ErrNotFound is returned when no activation exists for a key.
	ErrNotFound = errors.New("activation not found")

	// ErrNotReversible is returned when a reverse override targets an
	// activation that is not in the Triggered state.
	ErrNotReversible = errors.New("activation is not reversible")

	// ErrInvalidTTL is returned for a non-positive activation lifetime,
	// which would violate ExpiresAt >= TriggeredAt.
	ErrInvalidTTL = errors.New("activation ttl must be positive")
)

// Activation records that a specific deal went live because of a specific
// game. ExpiresAt >= TriggeredAt always holds.
type Activation struct {
	Key         string    `json:"activationKey"`
	DealID      string    `json:"dealId"`
	GameID      string    `json:"gameId"`
	Status      Status    `json:"status"`
	TriggeredAt time.Time `json:"triggeredAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the activation's lifetime has passed at now.
func (a Activation) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// Store is the durable, race-safe record of activation state. All
// implementations must make TryActivate atomic: under N concurrent calls
// with the same key, exactly one observes created=true and every other call
// receives the existing record.
type Store interface {
	// TryActivate inserts an activation for key if none exists, marking it
	// Triggered with the given lifetime. When a record already exists it is
	// returned with created=false; callers must treat that as "already
	// handled" and perform no further side effect.
	TryActivate(ctx context.Context, key, dealID, gameID string, ttl time.Duration) (created bool, _ Activation, _ error)

	// Get returns the activation for key or ErrNotFound.
	Get(ctx context.Context, key string) (Activation, error)

	// ListActive returns activations still Triggered and unexpired at now.
	ListActive(ctx context.Context, now time.Time) ([]Activation, error)

	// ExpireDue transitions Triggered activations past their ExpiresAt to
	// Expired and reports how many rows changed. Expired rows are retained
	// for audit.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	// Reverse transitions a Triggered activation to Reversed. Returns
	// ErrNotFound if no record exists and ErrNotReversible if the record is
	// in any state other than Triggered.
	Reverse(ctx context.Context, key string, now time.Time) (Activation, error)
}
