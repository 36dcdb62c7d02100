package taskname

const (
	// Payments
	PaymentsReconcile = "payments:reconcile"

	// Releases
	ReleaseBatchKickoff = "release:batch:kickoff"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)
