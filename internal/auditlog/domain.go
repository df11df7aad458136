// Package auditlog defines the domain types for the activity-log sink.
//
// The log is a durable audit trail of order state transitions, settlement
// side effects and admin actions. It serves two purposes:
//
//  1. Observability: the admin log viewer filters and pages over it, and the
//     trace_id column lets you jump from a row to the full distributed trace.
//
//  2. Accountability: refunds and failed side effects leave a row even when
//     the user-facing response is a generic error.
package auditlog

import "time"

// Action is the closed set of recorded verbs.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionPayment Action = "PAYMENT"
	ActionRefund  Action = "REFUND"
	ActionError   Action = "ERROR"
)

// Resource is the closed set of record subjects.
type Resource string

const (
	ResourceOrder        Resource = "ORDER"
	ResourceCoupon       Resource = "COUPON"
	ResourceReferral     Resource = "REFERRAL"
	ResourceNotification Resource = "NOTIFICATION"
	ResourceEmail        Resource = "EMAIL"
)

// Entry is a single row in the activity log.
type Entry struct {
	// UserID attributes the event; empty when no user context is available.
	UserID string

	Action   Action
	Resource Resource

	// ResourceID is the id of the affected row (order id, coupon id, ...).
	ResourceID string

	// Description is a short human-readable summary.
	Description string

	// ErrorMessage carries the failure detail for ERROR rows.
	ErrorMessage string

	// TraceID/SpanID are the W3C identifiers of the OpenTelemetry span
	// active when the entry was written, for correlation with traces.
	TraceID string
	SpanID  string

	CreatedAt time.Time
}

// Filter narrows List queries. Zero values mean "no constraint".
type Filter struct {
	UserID   string
	Action   Action
	Resource Resource
	Limit    int
	Offset   int
}
