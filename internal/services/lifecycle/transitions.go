package lifecycle

import (
	"sort"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

// Machine автомат, которому принадлежит состояние.
type Machine string

const (
	MachineHost         Machine = "host_profile"
	MachineSubscription Machine = "subscription"
	MachineContract     Machine = "contract"
)

// Event событие, запрашивающее переход.
type Event string

const (
	EventApprove       Event = "approve"
	EventReject        Event = "reject"
	EventPasswordSet   Event = "password_set"
	EventAccessExpire  Event = "access_expire"
	EventTrialExpire   Event = "trial_expire"
	EventServiceEnd    Event = "service_end"
	EventAdminUpdate   Event = "admin_update"
	EventSign          Event = "sign"
	EventRequestCancel Event = "request_cancel"
)

// AnyState подходит к любому исходному состоянию; как целевое означает «задаёт вызывающий».
const AnyState = "*"

// Transition результат допустимого перехода.
type Transition struct {
	To     string
	Action models.LogAction
	// Resend повторное одобрение: метки времени не меняются, выпускается новый токен.
	Resend bool
}

type transitionKey struct {
	machine Machine
	from    string
	event   Event
}

var transitions = map[transitionKey]Transition{
	{MachineHost, string(models.HostPendingReview), EventApprove}:  {To: string(models.HostApproved), Action: models.ActionApproved},
	{MachineHost, string(models.HostApproved), EventApprove}:       {To: string(models.HostApproved), Action: models.ActionLinkResent, Resend: true},
	{MachineHost, string(models.HostPendingReview), EventReject}:   {To: string(models.HostRejected), Action: models.ActionRejected},
	{MachineHost, string(models.HostApproved), EventPasswordSet}:   {To: string(models.HostActive), Action: models.ActionPasswordSet},
	{MachineHost, string(models.HostActive), EventAccessExpire}:    {To: string(models.HostDeactivated), Action: models.ActionAccessExpired},
	{MachineHost, string(models.HostSuspended), EventAccessExpire}: {To: string(models.HostDeactivated), Action: models.ActionAccessExpired},

	{MachineSubscription, string(models.SubscriptionTrialing), EventTrialExpire}: {To: string(models.SubscriptionCancelled), Action: models.ActionStatusChanged},
	{MachineSubscription, string(models.SubscriptionTrialing), EventServiceEnd}:  {To: string(models.SubscriptionCancelled)},
	{MachineSubscription, string(models.SubscriptionActive), EventServiceEnd}:    {To: string(models.SubscriptionCancelled)},
	{MachineSubscription, string(models.SubscriptionPastDue), EventServiceEnd}:   {To: string(models.SubscriptionCancelled)},
	{MachineSubscription, string(models.SubscriptionPaused), EventServiceEnd}:    {To: string(models.SubscriptionCancelled)},
	{MachineSubscription, AnyState, EventAdminUpdate}:                            {To: AnyState, Action: models.ActionStatusChanged},

	{MachineContract, string(models.ContractPending), EventSign}:                     {To: string(models.ContractActive), Action: models.ActionContractSigned},
	{MachineContract, string(models.ContractActive), EventRequestCancel}:             {To: string(models.ContractCancellationRequested), Action: models.ActionCancellationRequested},
	{MachineContract, string(models.ContractCancellationRequested), EventServiceEnd}: {To: string(models.ContractCancelled), Action: models.ActionServiceEnded},
	{MachineContract, string(models.ContractCancelled), EventAccessExpire}:           {To: string(models.ContractExpired), Action: models.ActionAccessExpired},
}

var conflictMessages = map[transitionKey]string{
	{MachineHost, "", EventApprove}:             "application cannot be approved in its current status",
	{MachineHost, "", EventReject}:              "application cannot be rejected in its current status",
	{MachineHost, "", EventPasswordSet}:         "account setup is not available for this application",
	{MachineHost, "", EventAccessExpire}:        "host profile cannot be deactivated in its current status",
	{MachineSubscription, "", EventTrialExpire}: "subscription is not trialing",
	{MachineSubscription, "", EventServiceEnd}:  "subscription is already cancelled",
	{MachineContract, "", EventSign}:            "contract already signed",
	{MachineContract, "", EventRequestCancel}:   "only an active contract can be cancelled",
	{MachineContract, "", EventServiceEnd}:      "contract has no pending cancellation",
	{MachineContract, "", EventAccessExpire}:    "contract is not cancelled",
}

// Next ищет переход из состояния from по событию ev.
// Недопустимая пара даёт Conflict с текущим и ожидаемыми состояниями.
func Next(m Machine, from string, ev Event) (Transition, error) {
	if t, ok := transitions[transitionKey{m, from, ev}]; ok {
		return t, nil
	}
	if t, ok := transitions[transitionKey{m, AnyState, ev}]; ok {
		return t, nil
	}
	msg, ok := conflictMessages[transitionKey{m, "", ev}]
	if !ok {
		msg = "transition " + string(ev) + " is not allowed"
	}
	return Transition{}, apperrors.Conflict(string(m), msg, from, Sources(m, ev)...)
}

// Sources исходные состояния, из которых допустимо событие ev.
func Sources(m Machine, ev Event) []string {
	var res []string
	for k := range transitions {
		if k.machine == m && k.event == ev {
			res = append(res, k.from)
		}
	}
	sort.Strings(res)
	return res
}

// contractState состояние договора; отсутствующий договор считается pending.
func contractState(c *models.ServiceContract) string {
	if c == nil {
		return string(models.ContractPending)
	}
	return string(c.Status)
}
