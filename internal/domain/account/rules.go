package account

import (
	"time"

	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/clock"
)

// Config holds quota and subscription limits.
type Config struct {
	// FreeLimit is the daily free quota.
	FreeLimit int
	// DailyHardLimit caps requests per service day for everyone. Zero disables the cap.
	DailyHardLimit int
	// SubscriptionDays is the length of one paid activation.
	SubscriptionDays int
}

// DefaultConfig returns default limits.
func DefaultConfig() Config {
	return Config{
		FreeLimit:        5,
		DailyHardLimit:   30,
		SubscriptionDays: 30,
	}
}

// DenyReason is a stable code explaining a refused turn.
type DenyReason string

const (
	ReasonBanned         DenyReason = "banned"
	ReasonRateAbuse      DenyReason = "rate_abuse"
	ReasonQuotaExhausted DenyReason = "quota_exhausted"
)

// Decision is the outcome of the quota gate.
type Decision struct {
	Allowed    bool           `json:"allowed"`
	Reason     DenyReason     `json:"reason,omitempty"`
	PaidActive bool           `json:"paid_active"`
	Account    *model.Account `json:"-"`
}

// NewAccount builds the row for a first-seen account.
func NewAccount(id int64, today time.Time, cfg Config) *model.Account {
	return &model.Account{
		ID:             id,
		ServiceDay:     today,
		QuotaRemaining: model.IntPtr(cfg.FreeLimit),
	}
}

// Roll applies day rollover and subscription expiry to acc and reports
// whether anything changed.
func Roll(acc *model.Account, today time.Time, cfg Config) bool {
	changed := false

	if !acc.ServiceDay.Equal(today) {
		acc.ServiceDay = today
		acc.RequestsToday = 0
		acc.BannedUntil = nil
		if acc.Subscribed {
			acc.QuotaRemaining = nil
		} else {
			acc.QuotaRemaining = model.IntPtr(cfg.FreeLimit)
		}
		changed = true
	}

	// A subscription without an end date is treated as expired. Activate always
	// sets both dates, so a missing end only comes from a damaged row.
	if acc.Subscribed && (acc.SubscriptionEnds == nil || today.After(*acc.SubscriptionEnds)) {
		acc.Subscribed = false
		acc.SubscriptionStarted = nil
		acc.SubscriptionEnds = nil
		acc.QuotaRemaining = model.IntPtr(cfg.FreeLimit)
		changed = true
	}

	return changed
}

// Decide runs the quota gate on a normalized account. On the hard cap it sets
// BannedUntil to today; the second result reports that mutation.
func Decide(acc *model.Account, today time.Time, cfg Config) (Decision, bool) {
	if acc.Banned(today) {
		return Decision{Reason: ReasonBanned}, false
	}

	paid := acc.PaidActive(today)

	if cfg.DailyHardLimit > 0 && acc.RequestsToday >= cfg.DailyHardLimit {
		changed := acc.BannedUntil == nil || !acc.BannedUntil.Equal(today)
		acc.BannedUntil = model.TimePtr(today)
		return Decision{Reason: ReasonRateAbuse, PaidActive: paid}, changed
	}

	if paid {
		return Decision{Allowed: true, PaidActive: true}, false
	}

	if acc.QuotaRemaining != nil && *acc.QuotaRemaining <= 0 {
		return Decision{Reason: ReasonQuotaExhausted}, false
	}

	return Decision{Allowed: true}, false
}

// Consume counts one answered request against acc.
func Consume(acc *model.Account, today time.Time) {
	acc.RequestsToday++
	if acc.PaidActive(today) || acc.QuotaRemaining == nil {
		return
	}
	left := *acc.QuotaRemaining - 1
	if left < 0 {
		left = 0
	}
	acc.QuotaRemaining = &left
}

// Activate starts a fresh paid window of days beginning today. Any later end
// date is replaced, never extended.
func Activate(acc *model.Account, today time.Time, days int) {
	ends := clock.AddDays(today, days)
	acc.Subscribed = true
	acc.SubscriptionStarted = model.TimePtr(today)
	acc.SubscriptionEnds = &ends
	acc.QuotaRemaining = nil
}

// ResetToFree drops the subscription and restores the free quota.
func ResetToFree(acc *model.Account, cfg Config) {
	acc.Subscribed = false
	acc.SubscriptionStarted = nil
	acc.SubscriptionEnds = nil
	acc.QuotaRemaining = model.IntPtr(cfg.FreeLimit)
}

// Prepare loads and normalizes an account inside tx. When create is set a
// missing account is inserted with defaults, otherwise nil is returned.
// The second result reports unsaved changes.
func Prepare(tx outbound.LedgerTx, id int64, today time.Time, cfg Config, create bool) (*model.Account, bool, error) {
	acc, err := tx.LoadAccount(id)
	if err != nil {
		return nil, false, err
	}
	if acc == nil {
		if !create {
			return nil, false, nil
		}
		acc, err = tx.CreateAccount(NewAccount(id, today, cfg))
		if err != nil {
			return nil, false, err
		}
	}
	return acc, Roll(acc, today, cfg), nil
}

// StatusOf builds the conversation-layer view of a normalized account.
func StatusOf(acc *model.Account, today time.Time) *model.AccountStatus {
	return &model.AccountStatus{
		AccountID:        acc.ID,
		PaidActive:       acc.PaidActive(today),
		QuotaRemaining:   acc.QuotaRemaining,
		RequestsToday:    acc.RequestsToday,
		SubscriptionEnds: acc.SubscriptionEnds,
		BannedUntil:      acc.BannedUntil,
		ServiceDay:       acc.ServiceDay,
	}
}
