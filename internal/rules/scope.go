package rules

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultScopeWindow bounds how many sibling events the loader fetches per
// direction.
const DefaultScopeWindow = 10

// EventQuery filters an EventFetcher listing.
type EventQuery struct {
	ProgramStage string
	OrgUnit      string
	DueBefore    string // inclusive upper bound on due date, empty for none
	OrderDesc    bool   // newest first when set
	Limit        int
}

// EventFetcher loads sibling events from the event repository.
type EventFetcher interface {
	ListEvents(ctx context.Context, q EventQuery) ([]*Event, error)
}

// ScopeLoader assembles the data scope consumed by the variable resolver.
// Cross-event windows are cached per executing event so a subsequent pass
// on the same unchanged event skips the fetch.
type ScopeLoader struct {
	fetcher EventFetcher
	window  int
	log     zerolog.Logger

	mu       sync.Mutex
	cacheKey string
	cached   []*Event
}

func NewScopeLoader(fetcher EventFetcher, window int, log zerolog.Logger) *ScopeLoader {
	if window <= 0 {
		window = DefaultScopeWindow
	}
	return &ScopeLoader{fetcher: fetcher, window: window, log: log}
}

// LoadInput identifies the executing event and its surroundings.
type LoadInput struct {
	Event        *Event
	OrgUnit      string
	Declarations []VariableDecl
	Enrollment   *Enrollment
	Entity       *TrackedEntity
}

// Load builds the scope for one evaluation pass. When no declared variable
// reads across events, the scope holds only the current event and no fetch
// happens. A failed fetch degrades to the current-event-only scope instead
// of blocking the pass.
func (l *ScopeLoader) Load(ctx context.Context, in LoadInput) *Scope {
	if in.Event == nil || !needsCrossEvents(in.Declarations) {
		return l.trivialScope(in)
	}

	events, err := l.eventWindow(ctx, in)
	if err != nil {
		l.log.Warn().Err(err).Str("event", in.Event.UID).
			Msg("sibling event fetch failed, falling back to current-event scope")
		return l.trivialScope(in)
	}

	return buildScope(in, events)
}

// Invalidate drops the cached sibling window so the next load fetches
// fresh events. Called after an evaluation pass persisted new events.
func (l *ScopeLoader) Invalidate() {
	l.mu.Lock()
	l.cacheKey = ""
	l.cached = nil
	l.mu.Unlock()
}

func needsCrossEvents(decls []VariableDecl) bool {
	for _, d := range decls {
		if d.Source.CrossesEvents() {
			return true
		}
	}
	return false
}

func (l *ScopeLoader) trivialScope(in LoadInput) *Scope {
	scope := &Scope{
		ExecutingEvent: in.Event,
		ByStage:        map[string][]*Event{},
		Enrollment:     in.Enrollment,
		Entity:         in.Entity,
	}
	if in.Event != nil {
		scope.All = []*Event{in.Event}
		scope.ByStage[in.Event.ProgramStage] = []*Event{in.Event}
	}
	return scope
}

// eventWindow returns the merged sibling window for the executing event,
// reusing the cached window when the event's identity and date match the
// previous load.
func (l *ScopeLoader) eventWindow(ctx context.Context, in LoadInput) ([]*Event, error) {
	key := in.Event.UID + "|" + in.Event.EventDate

	l.mu.Lock()
	if l.cacheKey == key {
		cached := l.cached
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	newest, err := l.fetcher.ListEvents(ctx, EventQuery{
		ProgramStage: in.Event.ProgramStage,
		OrgUnit:      in.OrgUnit,
		OrderDesc:    true,
		Limit:        l.window,
	})
	if err != nil {
		return nil, err
	}

	var before []*Event
	if in.Event.DueDate != "" {
		before, err = l.fetcher.ListEvents(ctx, EventQuery{
			ProgramStage: in.Event.ProgramStage,
			OrgUnit:      in.OrgUnit,
			DueBefore:    in.Event.DueDate,
			OrderDesc:    true,
			Limit:        l.window,
		})
		if err != nil {
			return nil, err
		}
	}

	merged := mergeEvents(in.Event, newest, before)

	l.mu.Lock()
	l.cacheKey = key
	l.cached = merged
	l.mu.Unlock()

	return merged, nil
}

// mergeEvents de-duplicates by event uid, keeps the executing event's own
// copy authoritative and sorts ascending by event date.
func mergeEvents(current *Event, lists ...[]*Event) []*Event {
	byUID := map[string]*Event{current.UID: current}
	for _, list := range lists {
		for _, ev := range list {
			if _, ok := byUID[ev.UID]; !ok {
				byUID[ev.UID] = ev
			}
		}
	}

	merged := make([]*Event, 0, len(byUID))
	for _, ev := range byUID {
		merged = append(merged, ev)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].EventDate != merged[j].EventDate {
			return merged[i].EventDate < merged[j].EventDate
		}
		return merged[i].UID < merged[j].UID
	})
	return merged
}

func buildScope(in LoadInput, events []*Event) *Scope {
	scope := &Scope{
		ExecutingEvent: in.Event,
		All:            events,
		ByStage:        map[string][]*Event{},
		Enrollment:     in.Enrollment,
		Entity:         in.Entity,
	}
	for _, ev := range events {
		scope.ByStage[ev.ProgramStage] = append(scope.ByStage[ev.ProgramStage], ev)
	}
	return scope
}
