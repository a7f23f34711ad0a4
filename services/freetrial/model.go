package freetrial

import (
	"time"
)

// Period is an ad-hoc exemption window for one tenant. Bounds are civil
// dates and both ends are inclusive.
type Period struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	StartDate time.Time `gorm:"column:start_date;type:date;not null" json:"start_date"`
	EndDate   time.Time `gorm:"column:end_date;type:date;not null" json:"end_date"`
	Reason    string    `gorm:"column:reason" json:"reason"`
	Active    bool      `gorm:"column:active;default:true" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Period) TableName() string {
	return "free_trial_periods"
}

type Source string

const (
	SourceNone   Source = ""
	SourceGlobal Source = "global"
	SourcePeriod Source = "period"
)

// Status is the display-facing trial state of a tenant.
type Status struct {
	TenantID      string     `json:"tenant_id"`
	InFreeTrial   bool       `json:"in_free_trial"`
	Source        Source     `json:"source,omitempty"`
	EndsOn        *time.Time `json:"ends_on,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
}

type CreatePeriodRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
	Reason    string `json:"reason"`
}
