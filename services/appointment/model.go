package appointment

import "time"

type Status string

var (
	Pending   Status = "pendente"
	Serviced  Status = "atendido"
	Cancelled Status = "cancelado"
)

func (s Status) String() string {
	switch s {
	case Pending, Serviced, Cancelled:
		return string(s)
	default:
		return ""
	}
}

// Appointment is the read model of a booking. Only Serviced appointments are
// candidates for the platform fee.
type Appointment struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;index:idx_appointments_tenant_date;not null" json:"tenant_id"`
	Date      time.Time `gorm:"column:date;type:date;index:idx_appointments_tenant_date;not null" json:"date"`
	Status    Status    `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Appointment) TableName() string {
	return "appointments"
}
