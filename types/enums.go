package types

type PlanKind string

const (
	PlanNone      PlanKind = "none"
	PlanCredits   PlanKind = "credits"
	PlanUnlimited PlanKind = "unlimited"
)

type PaymentStatus string

const (
	PaymentProcessing PaymentStatus = "processing"
	PaymentSucceeded  PaymentStatus = "succeeded"
)

type GrantKind string

const (
	GrantCredits   GrantKind = "credits"
	GrantUnlimited GrantKind = "unlimited"
	GrantDuplicate GrantKind = "duplicate"
)
