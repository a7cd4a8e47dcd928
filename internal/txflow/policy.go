package txflow

import "time"

type Step string

const (
	StepForm    Step = "form"
	StepConfirm Step = "confirm"
	StepPending Step = "pending"
	StepSuccess Step = "success"
	StepError   Step = "error"
)

// ActionClass names a kind of transaction. Confirmation-skip preferences,
// refresh delays and dismissal rules are keyed by class.
type ActionClass string

const (
	ClassOrder         ActionClass = "order"
	ClassClosePosition ActionClass = "close-position"
	ClassTpsl          ActionClass = "tpsl"
	ClassDeposit       ActionClass = "deposit"
	ClassWithdraw      ActionClass = "withdraw"
	ClassTransfer      ActionClass = "transfer"
	ClassStake         ActionClass = "stake"
	ClassUnstake       ActionClass = "unstake"
)

func Classes() []ActionClass {
	return []ActionClass{
		ClassOrder,
		ClassClosePosition,
		ClassTpsl,
		ClassDeposit,
		ClassWithdraw,
		ClassTransfer,
		ClassStake,
		ClassUnstake,
	}
}

type Policy struct {
	RefreshDelay time.Duration
	// Dismissible reports whether the flow may be closed while pending.
	Dismissible bool
}

func DefaultPolicies() map[ActionClass]Policy {
	return map[ActionClass]Policy{
		ClassOrder:         {RefreshDelay: time.Second},
		ClassClosePosition: {RefreshDelay: time.Second},
		ClassTpsl:          {RefreshDelay: time.Second},
		ClassDeposit:       {RefreshDelay: 5 * time.Second, Dismissible: true},
		ClassWithdraw:      {RefreshDelay: 3 * time.Second},
		ClassTransfer:      {RefreshDelay: 2 * time.Second},
		ClassStake:         {RefreshDelay: 3 * time.Second},
		ClassUnstake:       {RefreshDelay: 3 * time.Second},
	}
}

type Preferences interface {
	SkipConfirmation(class ActionClass) bool
}

// RefreshFunc asks the account collaborator to re-fetch. It is invoked,
// never awaited.
type RefreshFunc func()

type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func ClockScheduler() Scheduler {
	return clockScheduler{}
}
