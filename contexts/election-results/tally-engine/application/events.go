package application

import (
	"encoding/json"
	"time"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

const (
	TopicSubmissionReviewed   = "tally.submission.reviewed"
	TopicAggregateInvalidated = "tally.aggregate.invalidated"

	sourceService = "tally-engine"
)

// SubmissionReviewedPayload is the data of TopicSubmissionReviewed.
type SubmissionReviewedPayload struct {
	SubmissionID string                    `json:"submission_id"`
	StationID    string                    `json:"station_id"`
	Position     entities.Position         `json:"position"`
	ReviewID     string                    `json:"review_id"`
	ReviewerID   string                    `json:"reviewer_id"`
	Action       entities.ReviewAction     `json:"action"`
	FromStatus   entities.SubmissionStatus `json:"from_status"`
	ToStatus     entities.SubmissionStatus `json:"to_status"`
}

// AggregateInvalidatedPayload is the data of TopicAggregateInvalidated.
type AggregateInvalidatedPayload struct {
	SubmissionID string                  `json:"submission_id"`
	StationID    string                  `json:"station_id"`
	Keys         []entities.AggregateKey `json:"keys"`
}

// InvalidationKeys lists one key per location in the station's ancestor chain.
func InvalidationKeys(chain []entities.Location, position entities.Position) []entities.AggregateKey {
	keys := make([]entities.AggregateKey, 0, len(chain))
	for _, location := range chain {
		keys = append(keys, entities.AggregateKey{
			LocationID: location.LocationID,
			Position:   position,
		})
	}
	return keys
}

func NewEnvelope(
	eventID string,
	eventType string,
	partitionKeyPath string,
	partitionKey string,
	occurredAt time.Time,
	data any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    sourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     partitionKey,
		Data:             payload,
	}, nil
}

// NewOutboxMessage serializes an envelope into an outbox row.
func NewOutboxMessage(envelope ports.EventEnvelope) (ports.OutboxMessage, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	return ports.OutboxMessage{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}, nil
}
