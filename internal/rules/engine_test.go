package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockCreator struct {
	created []*Event
	err     error
}

func (m *mockCreator) CreateEvent(_ context.Context, ev *Event) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, ev)
	return nil
}

func intPtr(i int) *int { return &i }

func newTestEngine(creator EventCreator, opts ...EngineOption) *Engine {
	opts = append([]EngineOption{WithClock(func() time.Time { return testTime })}, opts...)
	return NewEngine(NewEffectStore(), creator, zerolog.Nop(), opts...)
}

func basicConfig(rules []Rule, decls []VariableDecl) *ProgramConfig {
	return &ProgramConfig{
		Rules:        rules,
		Declarations: decls,
		DataElements: map[string]DataElementMeta{
			"de1": {ID: "de1", ValueType: TypeInteger},
			"de2": {ID: "de2", ValueType: TypeText},
		},
	}
}

func TestExecute_EffectLifecycle(t *testing.T) {
	engine := newTestEngine(&mockCreator{})

	rules := []Rule{{
		ID:        "r1",
		Condition: "#{weight} > 50",
		Actions: []RuleAction{{
			ID:          "a1",
			Action:      ActionShowWarning,
			DataElement: "de1",
			Content:     "heavy",
			Data:        "#{weight}",
		}},
	}}
	decls := []VariableDecl{{Name: "weight", Source: SourceDataElementCurrentEvent, DataElement: "de1"}}

	ev := testEvent("ev1", "stage1", "2020-06-10", map[string]string{"de1": "70"})
	in := ExecuteInput{
		ContextID: "ev1",
		Config:    basicConfig(rules, decls),
		Scope:     scopeOf(ev, ev),
	}

	res, err := engine.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Updated {
		t.Error("first pass: Updated = false, want true")
	}

	effects := engine.Effects().Snapshot("ev1")
	if len(effects) != 1 {
		t.Fatalf("snapshot has %d effects, want 1", len(effects))
	}
	if !effects[0].InEffect || effects[0].Data != "70" {
		t.Errorf("effect = %+v, want InEffect=true Data=70", effects[0])
	}

	// Value drops below the threshold: effect flips off.
	ev.Values["de1"] = "40"
	res, err = engine.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Updated {
		t.Error("threshold flip: Updated = false, want true")
	}
	effects = engine.Effects().Snapshot("ev1")
	if effects[0].InEffect {
		t.Error("effect still in effect after value dropped")
	}
}

func TestExecute_Idempotent(t *testing.T) {
	notifications := 0
	engine := newTestEngine(&mockCreator{})
	engine.Effects().Subscribe(func(string, int) { notifications++ })

	rules := []Rule{{
		ID:        "r1",
		Condition: "#{weight} > 50",
		Actions:   []RuleAction{{ID: "a1", Action: ActionHideField, DataElement: "de2"}},
	}}
	decls := []VariableDecl{{Name: "weight", Source: SourceDataElementCurrentEvent, DataElement: "de1"}}

	ev := testEvent("ev1", "stage1", "2020-06-10", map[string]string{"de1": "70"})
	in := ExecuteInput{ContextID: "ev1", Config: basicConfig(rules, decls), Scope: scopeOf(ev, ev)}

	for i := 0; i < 3; i++ {
		if _, err := engine.Execute(context.Background(), in); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
	if notifications != 1 {
		t.Errorf("notifications = %d, want exactly 1 for unchanged input", notifications)
	}
}

func TestExecute_PriorityOrderingAndCalculatedValue(t *testing.T) {
	engine := newTestEngine(&mockCreator{})

	// The priority-1 rule assigns the calculated value; the priority-2
	// rule reads it; the unprioritized rule overwrites it last.
	rules := []Rule{
		{
			ID:        "late",
			Condition: "true",
			Actions: []RuleAction{{
				ID: "a-late", Action: ActionAssign, Content: "#{calc}", Data: "'200'",
			}},
		},
		{
			ID:        "reader",
			Priority:  intPtr(2),
			Condition: "#{calc} == 100",
			Actions:   []RuleAction{{ID: "a-reader", Action: ActionHideField, DataElement: "de2"}},
		},
		{
			ID:        "writer",
			Priority:  intPtr(1),
			Condition: "true",
			Actions: []RuleAction{{
				ID: "a-writer", Action: ActionAssign, Content: "#{calc}", Data: "'100'",
			}},
		},
	}
	decls := []VariableDecl{{Name: "calc", Source: SourceCalculatedValue, DataElement: "deCalc"}}

	ev := testEvent("ev1", "stage1", "2020-06-10", nil)
	cfg := basicConfig(rules, decls)
	cfg.DataElements["deCalc"] = DataElementMeta{ID: "deCalc", ValueType: TypeNumber}
	in := ExecuteInput{ContextID: "ev1", Config: cfg, Scope: scopeOf(ev, ev)}

	if _, err := engine.Execute(context.Background(), in); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var reader, writer, late *RuleEffect
	for _, eff := range engine.Effects().Snapshot("ev1") {
		switch eff.ID {
		case "a-reader":
			reader = eff
		case "a-writer":
			writer = eff
		case "a-late":
			late = eff
		}
	}
	if reader == nil || !reader.InEffect {
		t.Error("priority-2 rule did not observe the priority-1 assignment")
	}
	if writer == nil || writer.Data != "100" {
		t.Errorf("writer effect data = %+v, want 100", writer)
	}
	if late == nil || late.Data != "200" {
		t.Errorf("unprioritized rule's overwrite = %+v, want 200", late)
	}
}

func TestExecute_StageScopedRuleSelection(t *testing.T) {
	engine := newTestEngine(&mockCreator{})

	rules := []Rule{
		{ID: "global", Condition: "true",
			Actions: []RuleAction{{ID: "a-global", Action: ActionHideField, DataElement: "de1"}}},
		{ID: "mine", ProgramStage: "stage1", Condition: "true",
			Actions: []RuleAction{{ID: "a-mine", Action: ActionHideField, DataElement: "de2"}}},
		{ID: "other", ProgramStage: "stage2", Condition: "true",
			Actions: []RuleAction{{ID: "a-other", Action: ActionHideField, DataElement: "de2"}}},
	}

	ev := testEvent("ev1", "stage1", "2020-06-10", nil)
	in := ExecuteInput{ContextID: "ev1", Config: basicConfig(rules, nil), Scope: scopeOf(ev, ev)}
	if _, err := engine.Execute(context.Background(), in); err != nil {
		t.Fatalf("execute: %v", err)
	}

	ids := map[string]bool{}
	for _, eff := range engine.Effects().Snapshot("ev1") {
		ids[eff.ID] = true
	}
	if !ids["a-global"] || !ids["a-mine"] {
		t.Errorf("expected global and stage rules to run, got %v", ids)
	}
	if ids["a-other"] {
		t.Error("rule scoped to another stage ran")
	}
}

func createEventRule(data string) []Rule {
	return []Rule{{
		ID:        "r1",
		Condition: "true",
		Actions: []RuleAction{{
			ID:           "a1",
			Action:       ActionCreateEvent,
			ProgramStage: "followup",
			Data:         data,
		}},
	}}
}

func TestExecute_CreateEventDedup(t *testing.T) {
	existing := testEvent("evX", "followup", "2020-05-01", map[string]string{"A": "1", "B": "2"})
	current := testEvent("ev1", "stage1", "2020-06-10", nil)

	run := func(data string) *mockCreator {
		creator := &mockCreator{}
		engine := newTestEngine(creator)
		in := ExecuteInput{
			ContextID: "ev1",
			Config:    basicConfig(createEventRule(data), nil),
			Scope:     scopeOf(current, existing, current),
		}
		res, err := engine.Execute(context.Background(), in)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res.EventsCreated != len(creator.created) {
			t.Errorf("EventsCreated = %d, creator saw %d", res.EventsCreated, len(creator.created))
		}
		return creator
	}

	// Exact duplicate: skipped.
	if creator := run("'A:1,B:2'"); len(creator.created) != 0 {
		t.Errorf("duplicate data created %d events, want 0", len(creator.created))
	}

	// Differing value: created.
	creator := run("'A:1,B:3'")
	if len(creator.created) != 1 {
		t.Fatalf("new data created %d events, want 1", len(creator.created))
	}
	ev := creator.created[0]
	if ev.ProgramStage != "followup" || ev.Status != "ACTIVE" {
		t.Errorf("created event = %+v, want ACTIVE followup event", ev)
	}
	if ev.EventDate != testTime.Format("2006-01-02") {
		t.Errorf("event date = %q, want today", ev.EventDate)
	}
	if ev.Values["A"] != "1" || ev.Values["B"] != "3" {
		t.Errorf("event values = %v", ev.Values)
	}

	// Id-flagged field: only A participates in the comparison, so a
	// different B still counts as a duplicate.
	if creator := run("'[A]:1,B:9'"); len(creator.created) != 0 {
		t.Errorf("id-flagged duplicate created %d events, want 0", len(creator.created))
	}
}

func TestExecute_CreateEventDedupAgainstStoredEvents(t *testing.T) {
	// The target stage's events are persisted but absent from the scope,
	// which only holds the executing event. The duplicate comparison must
	// still find them through the fetcher.
	stored := testEvent("evX", "followup", "2020-05-01", map[string]string{"A": "1"})
	fetcher := &mockFetcher{events: []*Event{stored}}
	creator := &mockCreator{}
	engine := newTestEngine(creator, WithFetcher(fetcher))

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	in := ExecuteInput{
		ContextID: "ev1",
		Config:    basicConfig(createEventRule("'A:1'"), nil),
		Scope:     scopeOf(current, current),
	}
	res, err := engine.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(fetcher.queries) == 0 {
		t.Fatal("fetcher was never consulted for the target stage")
	}
	if len(creator.created) != 0 || res.EventsCreated != 0 {
		t.Errorf("stored duplicate created %d events, want 0", len(creator.created))
	}
}

func TestExecute_CreateEventRepeatPassCreatesOnce(t *testing.T) {
	creator := &mockCreator{}
	fetcher := &mockFetcher{}
	engine := newTestEngine(creator, WithFetcher(fetcher))

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	in := ExecuteInput{
		ContextID: "ev1",
		Config:    basicConfig(createEventRule("'A:1'"), nil),
		Scope:     scopeOf(current, current),
	}

	for i := 0; i < 3; i++ {
		if _, err := engine.Execute(context.Background(), in); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
		// Creation persists the event, so later passes see it as stored.
		fetcher.events = creator.created
	}
	if len(creator.created) != 1 {
		t.Errorf("repeated passes created %d events, want 1", len(creator.created))
	}
}

func TestExecute_CreateEventNonPersistentBroadcasts(t *testing.T) {
	creator := &mockCreator{}
	var broadcastEvents []*Event
	engine := newTestEngine(creator, WithBroadcast(func(ev *Event) {
		broadcastEvents = append(broadcastEvents, ev)
	}))

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	cfg := basicConfig(createEventRule("'A:1'"), nil)
	cfg.NonPersistentStages = map[string]bool{"followup": true}
	in := ExecuteInput{ContextID: "ev1", Config: cfg, Scope: scopeOf(current, current)}

	res, err := engine.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(creator.created) != 0 {
		t.Error("non-persistent stage event was persisted")
	}
	if len(broadcastEvents) != 1 || res.EventsCreated != 1 {
		t.Errorf("broadcast %d, created %d; want 1 broadcast counted", len(broadcastEvents), res.EventsCreated)
	}
}

func TestExecute_CreateEventErrorPropagates(t *testing.T) {
	creator := &mockCreator{err: fmt.Errorf("connection refused")}
	engine := newTestEngine(creator)

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	in := ExecuteInput{
		ContextID: "ev1",
		Config:    basicConfig(createEventRule("'A:1'"), nil),
		Scope:     scopeOf(current, current),
	}
	if _, err := engine.Execute(context.Background(), in); err == nil {
		t.Fatal("expected error from failing event creation")
	}
}

func TestExecute_ListenerReadsSnapshot(t *testing.T) {
	engine := newTestEngine(&mockCreator{})

	// A listener reading the store back during the notification must not
	// block the pass that triggered it.
	var seen []*RuleEffect
	engine.Effects().Subscribe(func(contextID string, _ int) {
		seen = engine.Effects().Snapshot(contextID)
	})

	rules := []Rule{{
		ID:        "r1",
		Condition: "true",
		Actions:   []RuleAction{{ID: "a1", Action: ActionHideField, DataElement: "de2"}},
	}}
	ev := testEvent("ev1", "stage1", "2020-06-10", nil)
	in := ExecuteInput{ContextID: "ev1", Config: basicConfig(rules, nil), Scope: scopeOf(ev, ev)}

	done := make(chan error, 1)
	go func() {
		_, err := engine.Execute(context.Background(), in)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not return while a listener read the store")
	}
	if len(seen) != 1 || !seen[0].InEffect {
		t.Errorf("listener snapshot = %+v, want the in-effect hide", seen)
	}
}

func TestEffectStore_ClearAndIsolation(t *testing.T) {
	store := NewEffectStore()
	ce := store.forContext("ctx1")
	ce.get(RuleAction{ID: "a1", Action: ActionHideField})

	if len(store.Snapshot("ctx1")) != 1 {
		t.Fatal("effect not cached")
	}
	if len(store.Snapshot("ctx2")) != 0 {
		t.Error("effects leaked across contexts")
	}

	store.Clear("ctx1")
	if len(store.Snapshot("ctx1")) != 0 {
		t.Error("Clear left effects behind")
	}
}

func TestSortRules(t *testing.T) {
	rules := []Rule{
		{ID: "none1"},
		{ID: "p2", Priority: intPtr(2)},
		{ID: "none2"},
		{ID: "p1", Priority: intPtr(1)},
	}
	sortRules(rules)

	want := []string{"p1", "p2", "none1", "none2"}
	for i, id := range want {
		if rules[i].ID != id {
			t.Fatalf("order = %v, want %v", ruleIDs(rules), want)
		}
	}
}

func ruleIDs(rules []Rule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}
