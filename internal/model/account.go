package model

import (
	"time"
)

// Account is the per-user quota and subscription row.
//
// Day-valued fields hold midnight UTC of the service day in the configured
// zone. SubscriptionStarted and SubscriptionEnds are set or cleared together.
type Account struct {
	ID                  int64      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Username            string     `json:"username,omitempty" gorm:"type:varchar(255)"`
	FullName            string     `json:"full_name,omitempty" gorm:"type:varchar(255)"`
	ServiceDay          time.Time  `json:"service_day" gorm:"type:date;not null"`
	QuotaRemaining      *int       `json:"quota_remaining"`
	RequestsToday       int        `json:"requests_today" gorm:"not null;default:0"`
	Subscribed          bool       `json:"subscribed" gorm:"not null;default:false"`
	SubscriptionStarted *time.Time `json:"subscription_started,omitempty" gorm:"type:date"`
	SubscriptionEnds    *time.Time `json:"subscription_ends,omitempty" gorm:"type:date"`
	BannedUntil         *time.Time `json:"banned_until,omitempty" gorm:"type:date"`
	Memory              string     `json:"memory,omitempty" gorm:"type:text"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName returns the table name.
func (Account) TableName() string {
	return "accounts"
}

// PaidActive reports whether the subscription covers today. The end day is
// inclusive. A subscribed row without an end date is not active.
func (a *Account) PaidActive(today time.Time) bool {
	return a.Subscribed && a.SubscriptionEnds != nil && !today.After(*a.SubscriptionEnds)
}

// Banned reports whether today falls inside the ban window.
func (a *Account) Banned(today time.Time) bool {
	return a.BannedUntil != nil && !today.After(*a.BannedUntil)
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.QuotaRemaining = cloneInt(a.QuotaRemaining)
	c.SubscriptionStarted = cloneTime(a.SubscriptionStarted)
	c.SubscriptionEnds = cloneTime(a.SubscriptionEnds)
	c.BannedUntil = cloneTime(a.BannedUntil)
	return &c
}

// AccountFilter selects accounts for listing.
type AccountFilter struct {
	SubscribedOnly bool
	Limit          int
	Offset         int
}

// DefaultLimit applies the listing page size.
func (f *AccountFilter) DefaultLimit() {
	if f.Limit <= 0 {
		f.Limit = 200
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// AccountStatus is the account view shown to the conversation layer.
type AccountStatus struct {
	AccountID        int64      `json:"account_id"`
	PaidActive       bool       `json:"paid_active"`
	QuotaRemaining   *int       `json:"quota_remaining"`
	RequestsToday    int        `json:"requests_today"`
	SubscriptionEnds *time.Time `json:"subscription_ends,omitempty"`
	BannedUntil      *time.Time `json:"banned_until,omitempty"`
	ServiceDay       time.Time  `json:"service_day"`
}

// AccountSnapshot is everything stored for one account.
type AccountSnapshot struct {
	Account      *Account       `json:"account"`
	Interactions []*Interaction `json:"interactions"`
	Payments     []*Payment     `json:"payments"`
	TakenAt      time.Time      `json:"taken_at"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
