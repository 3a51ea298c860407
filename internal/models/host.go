package models

import "time"

// HostStatus статус заявки/профиля хоста.
type HostStatus string

const (
	HostPendingReview HostStatus = "pending_review"
	HostApproved      HostStatus = "approved"
	HostActive        HostStatus = "active"
	HostSuspended     HostStatus = "suspended"
	HostDeactivated   HostStatus = "deactivated"
	HostRejected      HostStatus = "rejected"
)

// OnboardingStep упорядоченный шаг онбординга.
type OnboardingStep string

const (
	StepRegistered        OnboardingStep = "registered"
	StepEmailVerified     OnboardingStep = "email_verified"
	StepProfileCompleted  OnboardingStep = "profile_completed"
	StepPropertyAdded     OnboardingStep = "property_added"
	StepPaymentConfigured OnboardingStep = "payment_configured"
	StepOnboardingDone    OnboardingStep = "onboarding_complete"
)

var onboardingOrder = map[OnboardingStep]int{
	StepRegistered:        0,
	StepEmailVerified:     1,
	StepProfileCompleted:  2,
	StepPropertyAdded:     3,
	StepPaymentConfigured: 4,
	StepOnboardingDone:    5,
}

// Before сообщает, предшествует ли шаг s шагу other.
func (s OnboardingStep) Before(other OnboardingStep) bool {
	return onboardingOrder[s] < onboardingOrder[other]
}

// HostProfile профиль хоста (арендодателя), созданный через публичную заявку.
type HostProfile struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	Email              string             `json:"email,omitempty"`
	FullName           string             `json:"full_name,omitempty"`
	CompanyName        string             `json:"company_name"`
	Country            string             `json:"country"`
	Phone              string             `json:"phone"`
	PropertyType       string             `json:"property_type"`
	NumProperties      int                `json:"num_properties"`
	NumUnits           int                `json:"num_units"`
	Status             HostStatus         `json:"status"`
	OnboardingStep     OnboardingStep     `json:"onboarding_step"`
	SubscriptionPlan   SubscriptionPlan   `json:"subscription_plan"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	ApprovedAt         *time.Time         `json:"approved_at,omitempty"`
	ApprovedBy         *string            `json:"approved_by,omitempty"`
	RejectedAt         *time.Time         `json:"rejected_at,omitempty"`
	RejectedBy         *string            `json:"rejected_by,omitempty"`
	RejectionReason    string             `json:"rejection_reason"`
	SuspendedAt        *time.Time         `json:"suspended_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	// Revision растёт на единицу при каждом сохранении профиля.
	Revision int64 `json:"-"`
}

// HostState состояние профиля, прочитанное перед изменением: пара статусов и ревизия.
// Условное обновление применяется, только если все три поля не изменились.
type HostState struct {
	Status             HostStatus
	SubscriptionStatus SubscriptionStatus
	Revision           int64
}

// State возвращает текущее состояние профиля.
func (p *HostProfile) State() HostState {
	return HostState{Status: p.Status, SubscriptionStatus: p.SubscriptionStatus, Revision: p.Revision}
}
