package capture

import (
	"context"
	"time"

	"github.com/trackercapture/tracker/internal/rules"
)

// EventFetcherAdapter satisfies the engine's sibling-event lookup over the
// event repository.
type EventFetcherAdapter struct {
	Repo EventRepository
}

func (a *EventFetcherAdapter) ListEvents(ctx context.Context, q rules.EventQuery) ([]*rules.Event, error) {
	events, err := a.Repo.ListByStage(ctx, EventFilter{
		StageUID:  q.ProgramStage,
		OrgUnit:   q.OrgUnit,
		DueBefore: q.DueBefore,
		OrderDesc: q.OrderDesc,
		Limit:     q.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*rules.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, ToEngineEvent(ev))
	}
	return out, nil
}

// EventCreatorAdapter persists engine-generated events.
type EventCreatorAdapter struct {
	Repo EventRepository
}

func (a *EventCreatorAdapter) CreateEvent(ctx context.Context, ev *rules.Event) error {
	return a.Repo.Create(ctx, FromEngineEvent(ev))
}

// ToEngineEvent converts a stored event into the engine's view.
func ToEngineEvent(ev *Event) *rules.Event {
	out := &rules.Event{
		UID:          ev.UID,
		Program:      ev.ProgramUID,
		ProgramStage: ev.StageUID,
		OrgUnit:      ev.OrgUnit,
		Status:       ev.Status,
		Values:       make(map[string]string, len(ev.DataValues)),
	}
	if ev.EnrollmentUID != nil {
		out.Enrollment = *ev.EnrollmentUID
	}
	if ev.EventDate != nil {
		out.EventDate = ev.EventDate.Format(dateLayout)
	}
	if ev.DueDate != nil {
		out.DueDate = ev.DueDate.Format(dateLayout)
	}
	for de, v := range ev.DataValues {
		out.Values[de] = v
	}
	return out
}

// FromEngineEvent converts an engine event back into the storage model.
func FromEngineEvent(ev *rules.Event) *Event {
	out := &Event{
		UID:        ev.UID,
		ProgramUID: ev.Program,
		StageUID:   ev.ProgramStage,
		OrgUnit:    ev.OrgUnit,
		Status:     ev.Status,
		DataValues: make(map[string]string, len(ev.Values)),
	}
	if ev.Enrollment != "" {
		enrollment := ev.Enrollment
		out.EnrollmentUID = &enrollment
	}
	if d, err := time.Parse(dateLayout, ev.EventDate); err == nil {
		out.EventDate = &d
	}
	if d, err := time.Parse(dateLayout, ev.DueDate); err == nil {
		out.DueDate = &d
	}
	for de, v := range ev.Values {
		out.DataValues[de] = v
	}
	return out
}

// ToEngineEnrollment converts an enrollment plus its entity's attribute
// values into the engine's view.
func ToEngineEnrollment(e *Enrollment, entity *TrackedEntity) *rules.Enrollment {
	out := &rules.Enrollment{UID: e.UID}
	if e.EnrollmentDate != nil {
		out.EnrollmentDate = e.EnrollmentDate.Format(dateLayout)
	}
	if e.IncidentDate != nil {
		out.IncidentDate = e.IncidentDate.Format(dateLayout)
	}
	if entity != nil {
		for _, av := range entity.Attributes {
			out.Attributes = append(out.Attributes, rules.AttributeValue{
				Attribute: av.Attribute,
				Value:     av.Value,
			})
		}
	}
	return out
}

// ToEngineEntity converts a tracked entity into the engine's view.
func ToEngineEntity(te *TrackedEntity) *rules.TrackedEntity {
	out := &rules.TrackedEntity{UID: te.UID}
	for _, av := range te.Attributes {
		out.Attributes = append(out.Attributes, rules.AttributeValue{
			Attribute: av.Attribute,
			Value:     av.Value,
		})
	}
	return out
}
