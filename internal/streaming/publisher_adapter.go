package streaming

import (
	"context"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/engagement"
)

var _ engagement.EventPublisher = (*EventBusPublisher)(nil)

// EventBusPublisher implements engagement.EventPublisher using the EventBus.
// Dashboards receive the events through the hub's bus subscription.
type EventBusPublisher struct {
	eventBus *EventBus
}

// NewEventBusPublisher creates a new publisher adapter. eventBus may be nil.
func NewEventBusPublisher(eventBus *EventBus) *EventBusPublisher {
	return &EventBusPublisher{eventBus: eventBus}
}

// PublishSessionStarted announces the first message of a session
func (p *EventBusPublisher) PublishSessionStarted(ctx context.Context, sessionID, channel string) error {
	return p.publish(ctx, NewEngagementEvent(EventTypeSessionStarted, sessionID, channel))
}

// PublishScamDetected announces the classifier verdict for a session opener
func (p *EventBusPublisher) PublishScamDetected(ctx context.Context, sessionID, channel string, result models.ClassificationResult) error {
	event := NewEngagementEvent(EventTypeScamDetected, sessionID, channel)
	event.IsScam = result.IsScam
	event.Confidence = result.Confidence
	event.Explanation = result.Explanation
	return p.publish(ctx, event)
}

// PublishIntelligence announces entities captured by the latest turn
func (p *EventBusPublisher) PublishIntelligence(ctx context.Context, sessionID, channel string, added map[models.EntityKind][]string) error {
	if len(added) == 0 {
		return nil
	}
	event := NewEngagementEvent(EventTypeIntelligenceExtracted, sessionID, channel)
	event.Entities = added
	return p.publish(ctx, event)
}

// PublishSessionTerminated announces the final report of a session
func (p *EventBusPublisher) PublishSessionTerminated(ctx context.Context, channel string, record *models.ReportRecord) error {
	event := NewEngagementEvent(EventTypeSessionTerminated, record.Report.SessionID, channel)
	event.IsScam = record.Report.ScamDetected
	event.Confidence = record.ScamConfidence
	event.Reason = record.TerminationReason
	event.ReportID = record.ID.String()
	report := record.Report
	event.Report = &report
	return p.publish(ctx, event)
}

func (p *EventBusPublisher) publish(ctx context.Context, event *EngagementEvent) error {
	if p.eventBus == nil {
		return nil
	}
	return p.eventBus.Publish(ctx, event)
}
