package models

import "time"

// HostFilter параметры выборки профилей хостов.
type HostFilter struct {
	Status             HostStatus
	SubscriptionStatus SubscriptionStatus
	TrialEndsAfter     *time.Time // строго после
	TrialEndsBy        *time.Time // включительно
	Limit              int
	Offset             int
}

// ContractFilter параметры выборки договоров.
type ContractFilter struct {
	Status             ContractStatus
	ServiceEndBy       *time.Time // service_end_date <= дата
	ReadOnlyUntilBy    *time.Time // read_only_access_until <= дата
	ReadOnlyUntilEqual *time.Time // read_only_access_until = дата
}

// ConversationFilter параметры выборки переписок.
type ConversationFilter struct {
	HostID string
	Status ConversationStatus
}
