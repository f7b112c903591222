package events

// Topic constants for domain events emitted by the till.
const (
	TopicSaleRecorded  = "sale.recorded"
	TopicSaleReversed  = "sale.reversed"
	TopicCreditApplied = "credit.applied"
	TopicCreditFailed  = "credit.failed"
)
