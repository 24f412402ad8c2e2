package capture

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trackercapture/tracker/internal/rules"
)

// ConfigProvider hands the service an assembled engine configuration for a
// program. Implemented by the program service.
type ConfigProvider interface {
	EngineConfig(ctx context.Context, programUID string) (*rules.ProgramConfig, error)
}

type Service struct {
	entities    EntityRepository
	enrollments EnrollmentRepository
	events      EventRepository
	configs     ConfigProvider
	engine      *rules.Engine
	scopes      *rules.ScopeLoader
	log         zerolog.Logger
	debug       bool
}

// SetDebug forces verbose rule diagnostics on every evaluation, regardless
// of the per-request debug flag.
func (s *Service) SetDebug(debug bool) { s.debug = debug }

func NewService(
	entities EntityRepository,
	enrollments EnrollmentRepository,
	events EventRepository,
	configs ConfigProvider,
	engine *rules.Engine,
	scopes *rules.ScopeLoader,
	log zerolog.Logger,
) *Service {
	return &Service{
		entities:    entities,
		enrollments: enrollments,
		events:      events,
		configs:     configs,
		engine:      engine,
		scopes:      scopes,
		log:         log,
	}
}

// -- Tracked Entity --

func (s *Service) CreateEntity(ctx context.Context, te *TrackedEntity) error {
	if te.UID == "" {
		te.UID = uuid.NewString()
	}
	if te.OrgUnit == "" {
		return fmt.Errorf("org_unit is required")
	}
	return s.entities.Create(ctx, te)
}

func (s *Service) GetEntity(ctx context.Context, uid string) (*TrackedEntity, error) {
	return s.entities.GetByUID(ctx, uid)
}

func (s *Service) SetAttribute(ctx context.Context, entityUID string, av AttributeValue) error {
	if av.Attribute == "" {
		return fmt.Errorf("attribute is required")
	}
	return s.entities.SetAttribute(ctx, entityUID, av)
}

// -- Enrollment --

func (s *Service) CreateEnrollment(ctx context.Context, e *Enrollment) error {
	if e.UID == "" {
		e.UID = uuid.NewString()
	}
	if e.ProgramUID == "" {
		return fmt.Errorf("program_uid is required")
	}
	if e.EntityUID == "" {
		return fmt.Errorf("entity_uid is required")
	}
	if _, err := s.entities.GetByUID(ctx, e.EntityUID); err != nil {
		return fmt.Errorf("entity %s: %w", e.EntityUID, err)
	}
	return s.enrollments.Create(ctx, e)
}

func (s *Service) GetEnrollment(ctx context.Context, uid string) (*Enrollment, error) {
	return s.enrollments.GetByUID(ctx, uid)
}

func (s *Service) ListEnrollments(ctx context.Context, entityUID string) ([]*Enrollment, error) {
	return s.enrollments.ListByEntity(ctx, entityUID)
}

// -- Event --

func (s *Service) CreateEvent(ctx context.Context, ev *Event) error {
	if ev.UID == "" {
		ev.UID = uuid.NewString()
	}
	if ev.ProgramUID == "" {
		return fmt.Errorf("program_uid is required")
	}
	if ev.StageUID == "" {
		return fmt.Errorf("stage_uid is required")
	}
	return s.events.Create(ctx, ev)
}

func (s *Service) GetEvent(ctx context.Context, uid string) (*Event, error) {
	return s.events.GetByUID(ctx, uid)
}

func (s *Service) UpdateEvent(ctx context.Context, ev *Event) error {
	if ev.UID == "" {
		return fmt.Errorf("uid is required")
	}
	return s.events.Update(ctx, ev)
}

func (s *Service) ListEnrollmentEvents(ctx context.Context, enrollmentUID string) ([]*Event, error) {
	return s.events.ListByEnrollment(ctx, enrollmentUID)
}

// -- Evaluation --

// EvaluateRequest carries one capture form's current state. Event is the
// executing event in flat form: fixed keys (event, programStage, orgUnit,
// status, eventDate, dueDate) plus data element uids as top-level keys.
// Unsaved edits ride along in the flat map; the server never reads the
// executing event from storage.
type EvaluateRequest struct {
	Program       string            `json:"program"`
	ProgramStage  string            `json:"programStage,omitempty"`
	Context       string            `json:"context,omitempty"`
	Event         map[string]string `json:"event,omitempty"`
	Enrollment    string            `json:"enrollment,omitempty"`
	TrackedEntity string            `json:"trackedEntity,omitempty"`
	Debug         bool              `json:"debug,omitempty"`
}

// EffectView is the wire form of one cached rule effect.
type EffectView struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Location    string `json:"location,omitempty"`
	DataElement string `json:"dataElement,omitempty"`
	Attribute   string `json:"trackedEntityAttribute,omitempty"`
	Stage       string `json:"programStage,omitempty"`
	Section     string `json:"programStageSection,omitempty"`
	Content     string `json:"content,omitempty"`
	Data        string `json:"data,omitempty"`
	InEffect    bool   `json:"inEffect"`
}

// EvaluateResponse is the outcome of one engine pass.
type EvaluateResponse struct {
	Context       string             `json:"context"`
	Updated       bool               `json:"updated"`
	EventsCreated int                `json:"eventsCreated"`
	Effects       []EffectView       `json:"effects"`
	Result        *rules.ApplyResult `json:"result"`
	Event         map[string]string  `json:"event,omitempty"`
}

// Evaluate runs one full rule pass for the submitted form state: assemble
// the program config, build the scope around the executing event, execute
// the engine, then fold the resulting effects back into the form.
func (s *Service) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	if req.Program == "" {
		return nil, fmt.Errorf("program is required")
	}
	cfg, err := s.configs.EngineConfig(ctx, req.Program)
	if err != nil {
		return nil, err
	}

	var engineEvent *rules.Event
	if len(req.Event) > 0 {
		known := make(map[string]bool, len(cfg.DataElements))
		for uid := range cfg.DataElements {
			known[uid] = true
		}
		stored := Reconstruct(req.Event, known)
		stored.ProgramUID = req.Program
		if stored.StageUID == "" {
			stored.StageUID = req.ProgramStage
		}
		if req.Enrollment != "" {
			stored.EnrollmentUID = &req.Enrollment
		}
		engineEvent = ToEngineEvent(stored)
	}

	var enrollment *rules.Enrollment
	var entity *rules.TrackedEntity
	if req.Enrollment != "" {
		stored, err := s.enrollments.GetByUID(ctx, req.Enrollment)
		if err != nil {
			return nil, fmt.Errorf("enrollment %s: %w", req.Enrollment, err)
		}
		entityUID := req.TrackedEntity
		if entityUID == "" {
			entityUID = stored.EntityUID
		}
		te, err := s.entities.GetByUID(ctx, entityUID)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", entityUID, err)
		}
		enrollment = ToEngineEnrollment(stored, te)
		entity = ToEngineEntity(te)
	} else if req.TrackedEntity != "" {
		te, err := s.entities.GetByUID(ctx, req.TrackedEntity)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", req.TrackedEntity, err)
		}
		entity = ToEngineEntity(te)
	}

	orgUnit := ""
	if engineEvent != nil {
		orgUnit = engineEvent.OrgUnit
	}
	scope := s.scopes.Load(ctx, rules.LoadInput{
		Event:        engineEvent,
		OrgUnit:      orgUnit,
		Declarations: cfg.Declarations,
		Enrollment:   enrollment,
		Entity:       entity,
	})

	contextID := s.contextID(req, engineEvent)
	prior := priorSnapshot(scope.ExecutingEvent, entity)

	res, err := s.engine.Execute(ctx, rules.ExecuteInput{
		ContextID: contextID,
		Config:    cfg,
		Scope:     scope,
		Debug:     req.Debug || s.debug,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate context %s: %w", contextID, err)
	}
	if res.EventsCreated > 0 {
		s.scopes.Invalidate()
	}

	effects := s.engine.Effects().Snapshot(contextID)
	applied := rules.ApplyEffects(effects, scope.ExecutingEvent, entity, prior)

	resp := &EvaluateResponse{
		Context:       contextID,
		Updated:       res.Updated,
		EventsCreated: res.EventsCreated,
		Effects:       make([]EffectView, 0, len(effects)),
		Result:        applied,
	}
	for _, eff := range effects {
		resp.Effects = append(resp.Effects, EffectView{
			ID:          eff.ID,
			Action:      string(eff.Action),
			Location:    eff.Location,
			DataElement: eff.DataElement,
			Attribute:   eff.TrackedEntityAttribute,
			Stage:       eff.ProgramStage,
			Section:     eff.ProgramStageSection,
			Content:     eff.Content,
			Data:        displayData(cfg, eff),
			InEffect:    eff.InEffect,
		})
	}
	if scope.ExecutingEvent != nil {
		resp.Event = flattenEngineEvent(scope.ExecutingEvent)
	}
	return resp, nil
}

// ClearEffects drops a session's cached effects, ending the execution
// context's lifecycle.
func (s *Service) ClearEffects(contextID string) {
	s.engine.Effects().Clear(contextID)
}

// contextID picks the execution context tag: an explicit context wins, then
// the enrollment, then the executing event, then the single-event tag.
func (s *Service) contextID(req *EvaluateRequest, ev *rules.Event) string {
	switch {
	case req.Context != "":
		return req.Context
	case req.Enrollment != "":
		return req.Enrollment
	case ev != nil && ev.UID != "":
		return ev.UID
	default:
		return rules.SingleEventContext
	}
}

// displayData renders an effect's evaluated data for the response. Display
// effects bound to an option-set field show the option name instead of the
// stored code; everything else passes through unchanged.
func displayData(cfg *rules.ProgramConfig, eff *rules.RuleEffect) string {
	switch eff.Action {
	case rules.ActionDisplayKeyValuePair, rules.ActionShowWarning, rules.ActionShowError:
	default:
		return eff.Data
	}
	var set *rules.OptionSet
	switch {
	case eff.DataElement != "":
		if meta, ok := cfg.DataElements[eff.DataElement]; ok {
			set = meta.OptionSet
		}
	case eff.TrackedEntityAttribute != "":
		if meta, ok := cfg.Attributes[eff.TrackedEntityAttribute]; ok {
			set = meta.OptionSet
		}
	}
	if set == nil {
		return eff.Data
	}
	if name, ok := set.NameForCode(eff.Data); ok {
		return name
	}
	return eff.Data
}

// priorSnapshot records field values before the pass so SHOWERROR effects
// can roll the offending fields back.
func priorSnapshot(ev *rules.Event, entity *rules.TrackedEntity) map[string]string {
	prior := map[string]string{}
	if ev != nil {
		for de, v := range ev.Values {
			prior[de] = v
		}
	}
	if entity != nil {
		for _, av := range entity.Attributes {
			prior[av.Attribute] = av.Value
		}
	}
	return prior
}

func flattenEngineEvent(ev *rules.Event) map[string]string {
	flat := map[string]string{
		"event":        ev.UID,
		"programStage": ev.ProgramStage,
		"orgUnit":      ev.OrgUnit,
		"status":       ev.Status,
	}
	if ev.EventDate != "" {
		flat["eventDate"] = ev.EventDate
	}
	if ev.DueDate != "" {
		flat["dueDate"] = ev.DueDate
	}
	for de, v := range ev.Values {
		flat[de] = v
	}
	return flat
}
