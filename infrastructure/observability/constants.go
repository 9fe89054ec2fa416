package observability

// Metric name prefixes
const (
	MetricPrefix = "betmirror"
)

// Metric names
const (
	// Lifecycle metrics
	TransitionsCommittedTotal = MetricPrefix + ".transitions.committed_total"
	MirrorConflictsTotal      = MetricPrefix + ".transitions.conflicts_total"
	PolicyViolationsTotal     = MetricPrefix + ".transitions.policy_violations_total"

	// Chain metrics
	ChainSubmissionsTotal   = MetricPrefix + ".chain.submissions_total"
	ChainSubmissionDuration = MetricPrefix + ".chain.submission_duration"

	// Notification metrics
	NotificationsTotal = MetricPrefix + ".notifications.total"
)

// Label keys
const (
	LabelAction           = "action"
	LabelSource           = "source"
	LabelOutcome          = "outcome"
	LabelNotificationType = "notification_type"
)

