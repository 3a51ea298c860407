package models

import "time"

// ContractStatus статус договора на обслуживание.
type ContractStatus string

const (
	ContractPending               ContractStatus = "pending"
	ContractActive                ContractStatus = "active"
	ContractCancellationRequested ContractStatus = "cancellation_requested"
	ContractCancelled             ContractStatus = "cancelled"
	ContractExpired               ContractStatus = "expired"
)

// DefaultNoticeMonths срок уведомления о расторжении по умолчанию.
const DefaultNoticeMonths = 2

// ContractTemplate версия текста договора.
type ContractTemplate struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceContract договор хоста; один на профиль.
type ServiceContract struct {
	ID                      string         `json:"id"`
	HostID                  string         `json:"host_id"`
	Version                 string         `json:"version"`
	Status                  ContractStatus `json:"status"`
	SignedAt                *time.Time     `json:"signed_at,omitempty"`
	ServiceStartDate        *time.Time     `json:"service_start_date,omitempty"`
	CancellationRequestedAt *time.Time     `json:"cancellation_requested_at,omitempty"`
	CancellationReason      string         `json:"cancellation_reason"`
	NoticeMonths            int            `json:"cancellation_notice_months"`
	ServiceEndDate          *time.Time     `json:"service_end_date,omitempty"`
	ReadOnlyAccessUntil     *time.Time     `json:"read_only_access_until,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// ContractView договор с производными сроками.
type ContractView struct {
	*ServiceContract
	DaysUntilServiceEnd    *int `json:"days_until_service_end"`
	DaysUntilAccessExpires *int `json:"days_until_access_expires"`
}

// NewContractView вычисляет оставшиеся дни относительно now.
func NewContractView(c *ServiceContract, now time.Time) ContractView {
	v := ContractView{ServiceContract: c}
	today := DateOf(now)
	if c.Status == ContractCancellationRequested && c.ServiceEndDate != nil {
		d := DaysBetween(today, *c.ServiceEndDate)
		v.DaysUntilServiceEnd = &d
	}
	if c.Status == ContractCancelled && c.ReadOnlyAccessUntil != nil {
		d := DaysBetween(today, *c.ReadOnlyAccessUntil)
		v.DaysUntilAccessExpires = &d
	}
	return v
}

// DateOf отбрасывает время суток, оставляя календарную дату в UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween число целых суток между двумя датами (to - from), не меньше нуля.
func DaysBetween(from, to time.Time) int {
	d := int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
