package capture

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Entity Repository ===========

type entityRepoPG struct{ pool *pgxpool.Pool }

func NewEntityRepoPG(pool *pgxpool.Pool) EntityRepository { return &entityRepoPG{pool: pool} }

func (r *entityRepoPG) Create(ctx context.Context, te *TrackedEntity) error {
	te.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracked_entity (id, uid, org_unit) VALUES ($1,$2,$3)`,
		te.ID, te.UID, te.OrgUnit)
	if err != nil {
		return err
	}
	for _, av := range te.Attributes {
		if err := r.SetAttribute(ctx, te.UID, av); err != nil {
			return err
		}
	}
	return nil
}

func (r *entityRepoPG) GetByUID(ctx context.Context, uid string) (*TrackedEntity, error) {
	var te TrackedEntity
	err := r.pool.QueryRow(ctx, `
		SELECT id, uid, org_unit, created_at, updated_at
		FROM tracked_entity WHERE uid = $1`, uid).
		Scan(&te.ID, &te.UID, &te.OrgUnit, &te.CreatedAt, &te.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT attribute_uid, value
		FROM tracked_entity_attribute_value WHERE entity_uid = $1`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var av AttributeValue
		if err := rows.Scan(&av.Attribute, &av.Value); err != nil {
			return nil, err
		}
		te.Attributes = append(te.Attributes, av)
	}
	return &te, rows.Err()
}

func (r *entityRepoPG) SetAttribute(ctx context.Context, entityUID string, av AttributeValue) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracked_entity_attribute_value (entity_uid, attribute_uid, value)
		VALUES ($1,$2,$3)
		ON CONFLICT (entity_uid, attribute_uid) DO UPDATE SET value = EXCLUDED.value`,
		entityUID, av.Attribute, av.Value)
	return err
}

// =========== Enrollment Repository ===========

type enrollmentRepoPG struct{ pool *pgxpool.Pool }

func NewEnrollmentRepoPG(pool *pgxpool.Pool) EnrollmentRepository {
	return &enrollmentRepoPG{pool: pool}
}

const enrollmentCols = `id, uid, program_uid, entity_uid, org_unit, status,
	enrollment_date, incident_date, created_at, updated_at`

func scanEnrollment(row pgx.Row) (*Enrollment, error) {
	var e Enrollment
	err := row.Scan(&e.ID, &e.UID, &e.ProgramUID, &e.EntityUID, &e.OrgUnit, &e.Status,
		&e.EnrollmentDate, &e.IncidentDate, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *enrollmentRepoPG) Create(ctx context.Context, e *Enrollment) error {
	e.ID = uuid.New()
	if e.Status == "" {
		e.Status = "ACTIVE"
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO enrollment (id, uid, program_uid, entity_uid, org_unit, status,
			enrollment_date, incident_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.UID, e.ProgramUID, e.EntityUID, e.OrgUnit, e.Status,
		e.EnrollmentDate, e.IncidentDate)
	return err
}

func (r *enrollmentRepoPG) GetByUID(ctx context.Context, uid string) (*Enrollment, error) {
	return scanEnrollment(r.pool.QueryRow(ctx, `
		SELECT `+enrollmentCols+` FROM enrollment WHERE uid = $1`, uid))
}

func (r *enrollmentRepoPG) ListByEntity(ctx context.Context, entityUID string) ([]*Enrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+enrollmentCols+` FROM enrollment
		WHERE entity_uid = $1 ORDER BY enrollment_date`, entityUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *enrollmentRepoPG) CountByEntity(ctx context.Context, entityUID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM enrollment WHERE entity_uid = $1`, entityUID).Scan(&n)
	return n, err
}

// =========== Event Repository ===========

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository { return &eventRepoPG{pool: pool} }

const eventCols = `id, uid, program_uid, stage_uid, enrollment_uid, org_unit, status,
	event_date, due_date, created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	err := row.Scan(&ev.ID, &ev.UID, &ev.ProgramUID, &ev.StageUID, &ev.EnrollmentUID,
		&ev.OrgUnit, &ev.Status, &ev.EventDate, &ev.DueDate, &ev.CreatedAt, &ev.UpdatedAt)
	return &ev, err
}

func (r *eventRepoPG) Create(ctx context.Context, ev *Event) error {
	ev.ID = uuid.New()
	if ev.Status == "" {
		ev.Status = "ACTIVE"
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event (id, uid, program_uid, stage_uid, enrollment_uid, org_unit,
			status, event_date, due_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.ID, ev.UID, ev.ProgramUID, ev.StageUID, ev.EnrollmentUID, ev.OrgUnit,
		ev.Status, ev.EventDate, ev.DueDate)
	if err != nil {
		return err
	}
	return r.writeDataValues(ctx, ev)
}

func (r *eventRepoPG) GetByUID(ctx context.Context, uid string) (*Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `
		SELECT `+eventCols+` FROM event WHERE uid = $1`, uid))
	if err != nil {
		return nil, err
	}
	if err := r.loadDataValues(ctx, []*Event{ev}); err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *eventRepoPG) Update(ctx context.Context, ev *Event) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE event SET status=$2, event_date=$3, due_date=$4, updated_at=NOW()
		WHERE uid = $1`,
		ev.UID, ev.Status, ev.EventDate, ev.DueDate)
	if err != nil {
		return err
	}
	return r.writeDataValues(ctx, ev)
}

func (r *eventRepoPG) ListByStage(ctx context.Context, f EventFilter) ([]*Event, error) {
	q := `SELECT ` + eventCols + ` FROM event WHERE stage_uid = $1 AND org_unit = $2`
	args := []any{f.StageUID, f.OrgUnit}
	if f.DueBefore != "" {
		args = append(args, f.DueBefore)
		q += fmt.Sprintf(" AND due_date <= $%d", len(args))
	}
	if f.OrderDesc {
		q += " ORDER BY event_date DESC NULLS LAST"
	} else {
		q += " ORDER BY event_date NULLS LAST"
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadDataValues(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepoPG) ListByEnrollment(ctx context.Context, enrollmentUID string) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventCols+` FROM event
		WHERE enrollment_uid = $1 ORDER BY event_date NULLS LAST`, enrollmentUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadDataValues(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepoPG) writeDataValues(ctx context.Context, ev *Event) error {
	for de, v := range ev.DataValues {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO event_data_value (event_uid, data_element_uid, value)
			VALUES ($1,$2,$3)
			ON CONFLICT (event_uid, data_element_uid) DO UPDATE SET value = EXCLUDED.value`,
			ev.UID, de, v)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *eventRepoPG) loadDataValues(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	byUID := make(map[string]*Event, len(events))
	uids := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.DataValues == nil {
			ev.DataValues = map[string]string{}
		}
		byUID[ev.UID] = ev
		uids = append(uids, ev.UID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT event_uid, data_element_uid, value
		FROM event_data_value WHERE event_uid = ANY($1)`, uids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var eventUID, de, v string
		if err := rows.Scan(&eventUID, &de, &v); err != nil {
			return err
		}
		if ev, ok := byUID[eventUID]; ok {
			ev.DataValues[de] = v
		}
	}
	return rows.Err()
}
