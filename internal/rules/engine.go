package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventCreator persists events produced by CREATEEVENT actions.
type EventCreator interface {
	CreateEvent(ctx context.Context, ev *Event) error
}

// EventBroadcast receives events for stages flagged non-persistent, which
// are only shared in memory instead of written through the repository.
type EventBroadcast func(ev *Event)

// Engine evaluates program rules against a data scope and maintains the
// effect cache. A single Engine is shared by all execution contexts.
type Engine struct {
	effects   *EffectStore
	creator   EventCreator
	fetcher   EventFetcher
	broadcast EventBroadcast
	log       zerolog.Logger
	now       func() time.Time
}

type EngineOption func(*Engine)

// WithClock overrides the engine's notion of today, used by CREATEEVENT
// and current_date resolution.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithBroadcast installs the in-memory sink for non-persistent stage
// events.
func WithBroadcast(fn EventBroadcast) EngineOption {
	return func(e *Engine) { e.broadcast = fn }
}

// WithFetcher lets CREATEEVENT look up persisted events in its target
// stage before the duplicate comparison. Without a fetcher the comparison
// only sees events already in scope.
func WithFetcher(fetcher EventFetcher) EngineOption {
	return func(e *Engine) { e.fetcher = fetcher }
}

func NewEngine(effects *EffectStore, creator EventCreator, log zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		effects: effects,
		creator: creator,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Effects exposes the engine's effect store for snapshotting and session
// lifecycle management.
func (e *Engine) Effects() *EffectStore { return e.effects }

// ExecuteInput is one evaluation request.
type ExecuteInput struct {
	ContextID string
	Config    *ProgramConfig
	Scope     *Scope
	Debug     bool
}

// ExecuteResult summarizes one completed pass.
type ExecuteResult struct {
	Updated       bool
	EventsCreated int
}

// Execute runs one full evaluation pass: select applicable rules, resolve
// variables once, evaluate each rule's condition and actions in priority
// order, diff the outcomes against the effect cache and notify listeners
// when anything changed. Rules execute strictly in order because ASSIGN
// actions update CALCULATED_VALUE variables that later rules in the same
// pass observe.
func (e *Engine) Execute(ctx context.Context, in ExecuteInput) (*ExecuteResult, error) {
	if in.Config == nil || in.Scope == nil {
		return nil, fmt.Errorf("execute: config and scope are required")
	}

	ce := e.effects.forContext(in.ContextID)
	ce.mu.Lock()
	res, err := e.runPass(ctx, ce, in)
	ce.mu.Unlock()
	if err != nil {
		return res, err
	}

	// Listeners commonly read back through Snapshot, which takes the same
	// context lock, so the notification goes out only after it is released.
	if res.Updated {
		e.effects.notify(in.ContextID, res.EventsCreated)
	}
	return res, nil
}

// runPass evaluates every applicable rule and diffs the outcomes into the
// context's effect set. The caller holds the context lock.
func (e *Engine) runPass(ctx context.Context, ce *contextEffects, in ExecuteInput) (*ExecuteResult, error) {
	candidates := selectRules(in.Config.Rules, in.Scope.ExecutingEvent)
	sortRules(candidates)

	vars := ResolveVariables(ResolveInput{
		Declarations: in.Config.Declarations,
		Scope:        in.Scope,
		DataElements: in.Config.DataElements,
		Attributes:   in.Config.Attributes,
		Constants:    in.Config.Constants,
		Now:          e.now(),
	}, e.log)
	eval := NewEvaluator(vars, in.Debug, e.log)

	res := &ExecuteResult{}
	for _, rule := range candidates {
		effective := eval.EvaluateCondition(rule.ID, rule.Condition)

		for _, action := range rule.Actions {
			eff := ce.get(action)

			if effective && action.Data != "" {
				data, ok := e.actionData(action.Data, vars, eval)
				if ok && data != eff.Data {
					eff.Data = data
					res.Updated = true
				}
			}
			if eff.InEffect != effective {
				eff.InEffect = effective
				res.Updated = true
			}

			if !effective {
				continue
			}
			switch action.Action {
			case ActionCreateEvent:
				created, err := e.createEvent(ctx, action, eff.Data, in)
				if err != nil {
					return res, err
				}
				res.EventsCreated += created
			case ActionAssign:
				e.assignVariable(action, eff.Data, vars, in.Config)
			}
		}
	}
	return res, nil
}

// selectRules picks all program-wide rules plus, at event scope, the rules
// bound to the executing event's stage.
func selectRules(all []Rule, executing *Event) []Rule {
	var out []Rule
	for _, r := range all {
		if r.ProgramStage == "" {
			out = append(out, r)
			continue
		}
		if executing != nil && r.ProgramStage == executing.ProgramStage {
			out = append(out, r)
		}
	}
	return out
}

// sortRules orders ascending by priority; rules without a priority run
// last, keeping their insertion order.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		pi, pj := rules[i].Priority, rules[j].Priority
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})
}

// actionData computes an action's data value. A data expression consisting
// of exactly one variable reference substitutes directly; anything else
// goes through the full rewrite and evaluation pipeline. The returned
// string is the plain, unquoted value.
func (e *Engine) actionData(expression string, vars VariableMap, eval *Evaluator) (string, bool) {
	if v, ok := singleReference(expression, vars); ok {
		return stripQuotes(v.Value), true
	}
	val, err := eval.Evaluate(expression)
	if err != nil {
		e.log.Warn().Str("expression", expression).Err(err).Msg("action data failed to evaluate")
		return "", false
	}
	return val.Text(), true
}

// assignVariable makes an ASSIGN action's value visible to later rules in
// the same pass by updating the shared variable map. Only targets declared
// as CALCULATED_VALUE are writable this way.
func (e *Engine) assignVariable(action RuleAction, data string, vars VariableMap, cfg *ProgramConfig) {
	name := assignTarget(action)
	if name == "" {
		return
	}
	for _, decl := range cfg.Declarations {
		if decl.Name != name || decl.Source != SourceCalculatedValue {
			continue
		}
		key := VariableKey{Prefix: '#', Name: name}
		v, ok := vars[key]
		if !ok {
			return
		}
		v.Value = expressionLiteral(v.Type, data)
		v.HasValue = true
		v.AllValues = []string{data}
		return
	}
}

// assignTarget extracts the variable name an ASSIGN action writes to; the
// action content carries it as a #{name} reference.
func assignTarget(action RuleAction) string {
	content := strings.TrimSpace(action.Content)
	if strings.HasPrefix(content, "#{") && strings.HasSuffix(content, "}") {
		return content[2 : len(content)-1]
	}
	return ""
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "\\'", "'")
	}
	return s
}

// createEvent dispatches one in-effect CREATEEVENT action. The action's
// data lists the new event's values; creation is skipped when an existing
// event in the target stage already matches (see matchesExisting). The
// target stage is usually not the executing stage, so when the scope holds
// no match the engine asks the fetcher for the stage's persisted events
// before creating. Events for non-persistent stages are only broadcast in
// memory.
func (e *Engine) createEvent(ctx context.Context, action RuleAction, data string, in ExecuteInput) (int, error) {
	values, idFields := parseCreateEventData(data)
	if len(values) == 0 {
		e.log.Warn().Str("action", action.ID).Str("data", data).Msg("CREATEEVENT action carries no values")
		return 0, nil
	}

	stage := action.ProgramStage
	for _, existing := range in.Scope.ByStage[stage] {
		if matchesExisting(existing, values, idFields) {
			return 0, nil
		}
	}
	if e.fetcher != nil && !in.Config.NonPersistentStages[stage] {
		orgUnit := ""
		if in.Scope.ExecutingEvent != nil {
			orgUnit = in.Scope.ExecutingEvent.OrgUnit
		}
		stored, err := e.fetcher.ListEvents(ctx, EventQuery{ProgramStage: stage, OrgUnit: orgUnit})
		if err != nil {
			return 0, fmt.Errorf("list events in stage %s: %w", stage, err)
		}
		for _, existing := range stored {
			if matchesExisting(existing, values, idFields) {
				return 0, nil
			}
		}
	}

	today := e.now().Format(dateLayout)
	program, enrollment, orgUnit := "", "", ""
	if in.Scope.ExecutingEvent != nil {
		program = in.Scope.ExecutingEvent.Program
		orgUnit = in.Scope.ExecutingEvent.OrgUnit
	}
	if in.Scope.Enrollment != nil {
		enrollment = in.Scope.Enrollment.UID
	}
	ev := &Event{
		UID:          uuid.NewString(),
		Program:      program,
		ProgramStage: stage,
		Enrollment:   enrollment,
		OrgUnit:      orgUnit,
		Status:       "ACTIVE",
		EventDate:    today,
		DueDate:      today,
		Values:       values,
	}

	if in.Config.NonPersistentStages[stage] {
		if e.broadcast != nil {
			e.broadcast(ev)
		}
		rememberCreated(in.Scope, ev)
		return 1, nil
	}
	if e.creator == nil {
		return 0, fmt.Errorf("create event: no event creator configured")
	}
	if err := e.creator.CreateEvent(ctx, ev); err != nil {
		return 0, fmt.Errorf("create event in stage %s: %w", stage, err)
	}
	rememberCreated(in.Scope, ev)
	return 1, nil
}

// rememberCreated adds a just-created event to the scope so later actions
// in the same pass see it in the duplicate comparison.
func rememberCreated(scope *Scope, ev *Event) {
	if scope.ByStage == nil {
		scope.ByStage = map[string][]*Event{}
	}
	scope.ByStage[ev.ProgramStage] = append(scope.ByStage[ev.ProgramStage], ev)
	scope.All = append(scope.All, ev)
}

// parseCreateEventData parses a comma-separated list of dataElement:value
// pairs. A field id wrapped in brackets, e.g. "[de1]:v", flags that field
// as identifying for the duplicate comparison.
func parseCreateEventData(data string) (map[string]string, map[string]bool) {
	values := make(map[string]string)
	idFields := make(map[string]bool)
	for _, pair := range strings.Split(data, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		sep := strings.Index(pair, ":")
		if sep <= 0 {
			continue
		}
		field := strings.TrimSpace(pair[:sep])
		value := strings.TrimSpace(pair[sep+1:])
		if strings.HasPrefix(field, "[") && strings.HasSuffix(field, "]") {
			field = field[1 : len(field)-1]
			idFields[field] = true
		}
		values[field] = value
	}
	return values, idFields
}

// matchesExisting reports whether an existing event already carries the
// candidate values. When any field is flagged identifying, only flagged
// fields participate in the comparison; otherwise every candidate value
// must match.
func matchesExisting(existing *Event, values map[string]string, idFields map[string]bool) bool {
	for field, want := range values {
		if len(idFields) > 0 && !idFields[field] {
			continue
		}
		if existing.Values[field] != want {
			return false
		}
	}
	return true
}
