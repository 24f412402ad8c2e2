package capture

import (
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// TrackedEntity maps to the tracked_entity table. Attribute values are
// loaded alongside from tracked_entity_attribute_value.
type TrackedEntity struct {
	ID         uuid.UUID        `db:"id" json:"id"`
	UID        string           `db:"uid" json:"uid"`
	OrgUnit    string           `db:"org_unit" json:"org_unit"`
	Attributes []AttributeValue `db:"-" json:"attributes,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AttributeValue is one tracked entity attribute value.
type AttributeValue struct {
	Attribute string `db:"attribute_uid" json:"attribute"`
	Value     string `db:"value" json:"value"`
}

// Enrollment maps to the enrollment table, tying a tracked entity into a
// program.
type Enrollment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UID            string     `db:"uid" json:"uid"`
	ProgramUID     string     `db:"program_uid" json:"program_uid"`
	EntityUID      string     `db:"entity_uid" json:"entity_uid"`
	OrgUnit        string     `db:"org_unit" json:"org_unit"`
	Status         string     `db:"status" json:"status"`
	EnrollmentDate *time.Time `db:"enrollment_date" json:"enrollment_date,omitempty"`
	IncidentDate   *time.Time `db:"incident_date" json:"incident_date,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Event maps to the event table; DataValues holds the element uid → value
// pairs from event_data_value.
type Event struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	UID           string            `db:"uid" json:"uid"`
	ProgramUID    string            `db:"program_uid" json:"program_uid"`
	StageUID      string            `db:"stage_uid" json:"stage_uid"`
	EnrollmentUID *string           `db:"enrollment_uid" json:"enrollment_uid,omitempty"`
	OrgUnit       string            `db:"org_unit" json:"org_unit"`
	Status        string            `db:"status" json:"status"`
	EventDate     *time.Time        `db:"event_date" json:"event_date,omitempty"`
	DueDate       *time.Time        `db:"due_date" json:"due_date,omitempty"`
	DataValues    map[string]string `db:"-" json:"data_values,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// Flatten renders the event as a single flat map: the event's own fields
// under fixed keys plus each data element uid as a top-level property. The
// flat form is what capture clients edit and what the rule engine reads.
func (e *Event) Flatten() map[string]string {
	flat := map[string]string{
		"event":        e.UID,
		"programStage": e.StageUID,
		"orgUnit":      e.OrgUnit,
		"status":       e.Status,
	}
	if e.EventDate != nil {
		flat["eventDate"] = e.EventDate.Format(dateLayout)
	}
	if e.DueDate != nil {
		flat["dueDate"] = e.DueDate.Format(dateLayout)
	}
	for de, v := range e.DataValues {
		flat[de] = v
	}
	return flat
}

// Reconstruct folds a flat map back into an event. Only keys present in
// known (the stage's bound data elements) become data values; anything else
// that is not a fixed event field is dropped.
func Reconstruct(flat map[string]string, known map[string]bool) *Event {
	ev := &Event{
		UID:        flat["event"],
		StageUID:   flat["programStage"],
		OrgUnit:    flat["orgUnit"],
		Status:     flat["status"],
		DataValues: map[string]string{},
	}
	if d, err := time.Parse(dateLayout, flat["eventDate"]); err == nil {
		ev.EventDate = &d
	}
	if d, err := time.Parse(dateLayout, flat["dueDate"]); err == nil {
		ev.DueDate = &d
	}
	for k, v := range flat {
		if known[k] {
			ev.DataValues[k] = v
		}
	}
	return ev
}
