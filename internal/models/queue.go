package models

import "time"

// QueueStatus tracks an item through the underwriting queue.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "PENDING"
	QueueStatusAssigned   QueueStatus = "ASSIGNED"
	QueueStatusInProgress QueueStatus = "IN_PROGRESS"
	QueueStatusCompleted  QueueStatus = "COMPLETED"
	QueueStatusReturned   QueueStatus = "RETURNED"
)

// QueuePriority drives the SLA due date of a queue item.
type QueuePriority string

const (
	QueuePriorityHigh   QueuePriority = "HIGH"
	QueuePriorityMedium QueuePriority = "MEDIUM"
	QueuePriorityLow    QueuePriority = "LOW"
)

// SLAHours returns the turnaround target for the priority.
func (p QueuePriority) SLAHours() int {
	switch p {
	case QueuePriorityHigh:
		return 24
	case QueuePriorityMedium:
		return 48
	default:
		return 72
	}
}

// UnderwritingQueue is one application's seat in the review queue. Version
// is the optimistic concurrency token guarding state transitions.
type UnderwritingQueue struct {
	ID             string        `db:"id" json:"id"`
	ApplicationID  string        `db:"application_id" json:"application_id"`
	AssignedTo     *string       `db:"assigned_to" json:"assigned_to,omitempty"`
	AssignmentDate *time.Time    `db:"assignment_date" json:"assignment_date,omitempty"`
	Priority       QueuePriority `db:"priority" json:"priority"`
	Status         QueueStatus   `db:"status" json:"status"`
	RiskScore      *float64      `db:"risk_score" json:"risk_score,omitempty"`
	DueDate        time.Time     `db:"due_date" json:"due_date"`
	Version        int           `db:"version" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether the item blew its SLA without being completed.
func (q *UnderwritingQueue) IsOverdue(now time.Time) bool {
	return q.DueDate.Before(now) && q.Status != QueueStatusCompleted
}

// Active reports whether the item still accepts transitions.
func (q *UnderwritingQueue) Active() bool {
	return q.Status == QueueStatusPending || q.Status == QueueStatusAssigned || q.Status == QueueStatusInProgress
}

// Assignable reports whether an underwriter may claim the item. Returned
// items go back to the pool and stay claimable.
func (q *UnderwritingQueue) Assignable() bool {
	return q.Status == QueueStatusPending || q.Status == QueueStatusReturned || q.Status == QueueStatusAssigned
}

// QueueFilter captures listing criteria for queue items.
type QueueFilter struct {
	Status     QueueStatus
	Priority   QueuePriority
	AssignedTo string
	Overdue    *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// QueueSummary aggregates queue depth for dashboards.
type QueueSummary struct {
	Pending     int       `json:"pending"`
	Assigned    int       `json:"assigned"`
	InProgress  int       `json:"in_progress"`
	Completed   int       `json:"completed"`
	Returned    int       `json:"returned"`
	Overdue     int       `json:"overdue"`
	GeneratedAt time.Time `json:"generated_at"`
}
