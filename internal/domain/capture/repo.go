package capture

import (
	"context"
)

// EntityRepository persists tracked entities and their attribute values.
type EntityRepository interface {
	Create(ctx context.Context, te *TrackedEntity) error
	GetByUID(ctx context.Context, uid string) (*TrackedEntity, error)
	SetAttribute(ctx context.Context, entityUID string, av AttributeValue) error
}

// EnrollmentRepository persists enrollments.
type EnrollmentRepository interface {
	Create(ctx context.Context, e *Enrollment) error
	GetByUID(ctx context.Context, uid string) (*Enrollment, error)
	ListByEntity(ctx context.Context, entityUID string) ([]*Enrollment, error)
	CountByEntity(ctx context.Context, entityUID string) (int, error)
}

// EventFilter narrows an event listing. A zero DueBefore means no upper
// bound; OrderDesc lists newest event date first.
type EventFilter struct {
	StageUID  string
	OrgUnit   string
	DueBefore string
	OrderDesc bool
	Limit     int
}

// EventRepository persists events and their data values.
type EventRepository interface {
	Create(ctx context.Context, ev *Event) error
	GetByUID(ctx context.Context, uid string) (*Event, error)
	Update(ctx context.Context, ev *Event) error
	ListByStage(ctx context.Context, f EventFilter) ([]*Event, error)
	ListByEnrollment(ctx context.Context, enrollmentUID string) ([]*Event, error)
}
