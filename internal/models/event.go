package models

import "time"

// EventType identifies a domain event emitted by the underwriting flows.
type EventType string

const (
	EventDecisionRecorded     EventType = "DECISION_RECORDED"
	EventQueueItemAssigned    EventType = "QUEUE_ITEM_ASSIGNED"
	EventQueueItemReturned    EventType = "QUEUE_ITEM_RETURNED"
	EventStipulationSatisfied EventType = "STIPULATION_SATISFIED"
)

// DomainEvent is the explicit record handed to the dispatcher. Downstream
// consumers (notifications, audit, document workflow) subscribe by type
// instead of hooking persistence side effects.
type DomainEvent struct {
	Type          EventType   `json:"type"`
	ApplicationID string      `json:"application_id"`
	ActorID       string      `json:"actor_id,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Payload       interface{} `json:"payload,omitempty"`
}

// DecisionRecordedPayload accompanies EventDecisionRecorded.
type DecisionRecordedPayload struct {
	DecisionID   string            `json:"decision_id"`
	Decision     DecisionKind      `json:"decision"`
	NewStatus    ApplicationStatus `json:"new_status"`
	Reasons      []ReasonCode      `json:"reasons,omitempty"`
	Stipulations []StipulationType `json:"stipulations,omitempty"`
}

// QueueItemPayload accompanies queue assignment and return events.
type QueueItemPayload struct {
	QueueID    string      `json:"queue_id"`
	AssignedTo string      `json:"assigned_to,omitempty"`
	Status     QueueStatus `json:"status"`
}

// StipulationSatisfiedPayload accompanies EventStipulationSatisfied.
type StipulationSatisfiedPayload struct {
	StipulationID string          `json:"stipulation_id"`
	Type          StipulationType `json:"stipulation_type"`
}
