package tenant

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tenant is a barber shop billed by the platform.
type Tenant struct {
	ID                 string          `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt          time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at" json:"updated_at"`
	Name               string          `gorm:"column:name" json:"name"`
	PlatformFee        decimal.Decimal `gorm:"column:platform_fee;type:numeric(10,2);not null;default:0" json:"platform_fee"`
	Active             bool            `gorm:"column:active;index;default:true" json:"active"`
	FreeTrialActive    bool            `gorm:"column:free_trial_active;default:false" json:"free_trial_active"`
	FreeTrialStartDate *time.Time      `gorm:"column:free_trial_start_date" json:"free_trial_start_date,omitempty"`
	FreeTrialEndDate   *time.Time      `gorm:"column:free_trial_end_date" json:"free_trial_end_date,omitempty"`
	FreeTrialDays      int             `gorm:"column:free_trial_days" json:"free_trial_days"`
}

func (Tenant) TableName() string {
	return "barber_shops"
}

// HasGlobalTrial reports whether the tenant-wide trial window is configured and flagged on.
func (m *Tenant) HasGlobalTrial() bool {
	return m.FreeTrialActive && m.FreeTrialStartDate != nil && m.FreeTrialEndDate != nil
}

type UpdatePlatformFeeRequest struct {
	PlatformFee decimal.Decimal `json:"platform_fee"`
}
