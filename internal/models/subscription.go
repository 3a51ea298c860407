package models

import "time"

// SubscriptionPlan тарифный план хоста.
type SubscriptionPlan string

const (
	PlanFreeTrial    SubscriptionPlan = "free_trial"
	PlanStarter      SubscriptionPlan = "starter"
	PlanProfessional SubscriptionPlan = "professional"
	PlanEnterprise   SubscriptionPlan = "enterprise"
)

// Valid проверяет, что план известен.
func (p SubscriptionPlan) Valid() bool {
	switch p {
	case PlanFreeTrial, PlanStarter, PlanProfessional, PlanEnterprise:
		return true
	}
	return false
}

// MaxOTAConnections лимит подключений к OTA-каналам для плана.
func (p SubscriptionPlan) MaxOTAConnections() int {
	switch p {
	case PlanStarter:
		return 5
	case PlanProfessional:
		return 20
	case PlanEnterprise:
		return 100
	default:
		return 2
	}
}

// SubscriptionStatus статус подписки, независимый от статуса профиля.
type SubscriptionStatus string

const (
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPaused    SubscriptionStatus = "paused"
)

// Valid проверяет, что статус известен.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled, SubscriptionPaused:
		return true
	}
	return false
}

// SubscriptionView производное представление подписки для портала хоста.
type SubscriptionView struct {
	Plan               SubscriptionPlan   `json:"subscription_plan"`
	Status             SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at"`
	TrialDaysRemaining int                `json:"trial_days_remaining"`
	IsTrialExpired     bool               `json:"is_trial_expired"`
	IsPortalLocked     bool               `json:"is_portal_locked"`
	MaxOTAConnections  int                `json:"max_ota_connections"`
}

// NewSubscriptionView вычисляет представление подписки на момент now.
func NewSubscriptionView(p *HostProfile, now time.Time) SubscriptionView {
	v := SubscriptionView{
		Plan:              p.SubscriptionPlan,
		Status:            p.SubscriptionStatus,
		TrialEndsAt:       p.TrialEndsAt,
		MaxOTAConnections: p.SubscriptionPlan.MaxOTAConnections(),
	}
	if p.TrialEndsAt != nil {
		if p.SubscriptionStatus == SubscriptionTrialing {
			v.TrialDaysRemaining = DaysCeil(p.TrialEndsAt.Sub(now))
		}
		v.IsTrialExpired = p.SubscriptionPlan == PlanFreeTrial &&
			!p.TrialEndsAt.After(now) &&
			(p.SubscriptionStatus == SubscriptionTrialing || p.SubscriptionStatus == SubscriptionCancelled)
	}
	switch p.SubscriptionStatus {
	case SubscriptionCancelled, SubscriptionPastDue, SubscriptionPaused:
		v.IsPortalLocked = true
	}
	return v
}

// DaysCeil округляет длительность вверх до целых суток; отрицательное значение даёт 0.
func DaysCeil(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}
