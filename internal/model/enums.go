package model

type RedemptionState string

const (
	RedemptionStateUnused RedemptionState = "unused"
	RedemptionStateUsed   RedemptionState = "used"
)

// ProductUnscoped marks a code that unlocks any product.
const ProductUnscoped = "*"

type RedeemReason string

const (
	RedeemReasonProductMismatch RedeemReason = "product_mismatch"
	RedeemReasonAlreadyUsed     RedeemReason = "already_used"
	RedeemReasonNotFound        RedeemReason = "not_found"
	RedeemReasonMalformedInput  RedeemReason = "malformed_input"
)

type IngestOutcome string

const (
	IngestOutcomeCreated   IngestOutcome = "created"
	IngestOutcomeDuplicate IngestOutcome = "duplicate"
	IngestOutcomeIgnored   IngestOutcome = "ignored"
	IngestOutcomeRejected  IngestOutcome = "rejected"
	IngestOutcomeFailed    IngestOutcome = "failed"
)
