package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pixil98/go-isleborn/internal/instance"
)

const SubjectPrefix = "instances"

// Publisher is anything that can put bytes on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// EventPublisher sends instance lifecycle events to
// instances.<owner>.<event>.
type EventPublisher struct {
	pub Publisher
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

// EventSubject is the subject ev is published on.
func EventSubject(ev instance.Event) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, ev.Owner, ev.Type)
}

func (p *EventPublisher) Notify(_ context.Context, ev instance.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	if err := p.pub.Publish(EventSubject(ev), data); err != nil {
		return fmt.Errorf("publishing %s: %w", EventSubject(ev), err)
	}
	return nil
}

var _ instance.Notifier = (*EventPublisher)(nil)
