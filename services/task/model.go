package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

var (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is the audit record of one batch run.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey"`
	Name        string         `gorm:"column:name;type:varchar(100);index;not null"`
	Period      string         `gorm:"column:period;type:varchar(7);index"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);default:'running'"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}

func (Job) TableName() string {
	return "jobs"
}

// TenantResult is the outcome of billing one tenant inside a run.
type TenantResult struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	Success    bool   `json:"success"`
	Created    bool   `json:"created"`
	InvoiceID  string `json:"invoice_id,omitempty"`
	Message    string `json:"message"`
}

type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
	Created int `json:"created"`
}

// RunResult is returned by a batch run. Skipped runs carry no results.
type RunResult struct {
	Success bool           `json:"success"`
	Skipped bool           `json:"skipped,omitempty"`
	Message string         `json:"message"`
	Period  string         `json:"period,omitempty"`
	Summary Summary        `json:"summary"`
	Results []TenantResult `json:"results"`
}
