package rules

import "sync"

// EffectListener is notified after an evaluation pass that changed at
// least one cached effect. eventsCreated counts CREATEEVENT dispatches
// made during that pass.
type EffectListener func(contextID string, eventsCreated int)

// EffectStore is the process-wide effect cache, keyed by execution context
// (an event uid, or SingleEventContext). One RuleEffect exists per
// (context, actionID) pair at any time; entries are created lazily,
// mutated on re-evaluation and live until the context is cleared at the
// end of its data-entry session. Passes for the same context serialize on
// the per-context lock; passes for different contexts are independent.
type EffectStore struct {
	mu        sync.Mutex
	contexts  map[string]*contextEffects
	listeners []EffectListener
}

type contextEffects struct {
	mu      sync.Mutex
	effects map[string]*RuleEffect
	order   []string // action ids in first-encounter order
}

func NewEffectStore() *EffectStore {
	return &EffectStore{contexts: make(map[string]*contextEffects)}
}

// Subscribe registers a listener for effect-updated notifications.
func (s *EffectStore) Subscribe(fn EffectListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// forContext returns the effect set for the context, creating it on first
// use.
func (s *EffectStore) forContext(contextID string) *contextEffects {
	s.mu.Lock()
	defer s.mu.Unlock()
	ce, ok := s.contexts[contextID]
	if !ok {
		ce = &contextEffects{effects: make(map[string]*RuleEffect)}
		s.contexts[contextID] = ce
	}
	return ce
}

// Clear drops every cached effect for the context. Called when the editing
// session for the context ends.
func (s *EffectStore) Clear(contextID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, contextID)
}

// Snapshot returns the context's effects in first-encounter order.
func (s *EffectStore) Snapshot(contextID string) []*RuleEffect {
	s.mu.Lock()
	ce, ok := s.contexts[contextID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	ce.mu.Lock()
	defer ce.mu.Unlock()
	out := make([]*RuleEffect, 0, len(ce.order))
	for _, id := range ce.order {
		copied := *ce.effects[id]
		out = append(out, &copied)
	}
	return out
}

func (s *EffectStore) notify(contextID string, eventsCreated int) {
	s.mu.Lock()
	listeners := make([]EffectListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(contextID, eventsCreated)
	}
}

// get returns the cached effect for the action, creating it from the
// action template on first encounter.
func (ce *contextEffects) get(action RuleAction) *RuleEffect {
	eff, ok := ce.effects[action.ID]
	if !ok {
		eff = &RuleEffect{
			ID:                     action.ID,
			Action:                 action.Action,
			Location:               action.Location,
			DataElement:            action.DataElement,
			TrackedEntityAttribute: action.TrackedEntityAttribute,
			ProgramStage:           action.ProgramStage,
			ProgramStageSection:    action.ProgramStageSection,
			Content:                action.Content,
		}
		ce.effects[action.ID] = eff
		ce.order = append(ce.order, action.ID)
	}
	return eff
}
