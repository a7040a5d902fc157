package model

import (
	"time"
)

// Interaction is one answered user message. Rows are append-only except for
// Summary, which the daily job sets on the last row of a service day.
type Interaction struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	AccountID  int64     `json:"account_id" gorm:"not null;index:idx_interactions_account_day,priority:1"`
	ServiceDay time.Time `json:"service_day" gorm:"type:date;not null;index:idx_interactions_account_day,priority:2"`
	Input      string    `json:"input" gorm:"type:text"`
	Output     string    `json:"output" gorm:"type:text"`
	Summary    *string   `json:"summary,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null"`
}

// TableName returns the table name.
func (Interaction) TableName() string {
	return "interactions"
}

// Clone returns a deep copy.
func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	c := *i
	if i.Summary != nil {
		s := *i.Summary
		c.Summary = &s
	}
	return &c
}
