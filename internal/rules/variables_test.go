package rules

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testTime = time.Date(2020, 6, 15, 12, 0, 0, 0, time.UTC)

func testEvent(uid, stage, date string, values map[string]string) *Event {
	if values == nil {
		values = map[string]string{}
	}
	return &Event{
		UID:          uid,
		ProgramStage: stage,
		EventDate:    date,
		DueDate:      date,
		Status:       "ACTIVE",
		Values:       values,
	}
}

func scopeOf(executing *Event, all ...*Event) *Scope {
	byStage := map[string][]*Event{}
	for _, ev := range all {
		byStage[ev.ProgramStage] = append(byStage[ev.ProgramStage], ev)
	}
	return &Scope{ExecutingEvent: executing, All: all, ByStage: byStage}
}

func resolve(t *testing.T, in ResolveInput) VariableMap {
	t.Helper()
	if in.Now.IsZero() {
		in.Now = testTime
	}
	return ResolveVariables(in, zerolog.Nop())
}

func TestResolveVariables_CurrentEvent(t *testing.T) {
	ev := testEvent("ev1", "stage1", "2020-06-10", map[string]string{"de1": "42"})
	vars := resolve(t, ResolveInput{
		Declarations: []VariableDecl{{Name: "weight", Source: SourceDataElementCurrentEvent, DataElement: "de1"}},
		Scope:        scopeOf(ev, ev),
		DataElements: map[string]DataElementMeta{"de1": {ID: "de1", ValueType: TypeInteger}},
	})

	v, ok := vars[VariableKey{'#', "weight"}]
	if !ok {
		t.Fatal("variable weight not resolved")
	}
	if !v.HasValue || v.Value != "42" {
		t.Errorf("weight = %+v, want HasValue=true Value=42", v)
	}
	if v.EventDate != "2020-06-10" {
		t.Errorf("EventDate = %q, want 2020-06-10", v.EventDate)
	}
}

func TestResolveVariables_MissingValueGetsTypedDefault(t *testing.T) {
	ev := testEvent("ev1", "stage1", "2020-06-10", nil)
	decls := []VariableDecl{
		{Name: "num", Source: SourceDataElementCurrentEvent, DataElement: "deNum"},
		{Name: "txt", Source: SourceDataElementCurrentEvent, DataElement: "deTxt"},
		{Name: "flag", Source: SourceDataElementCurrentEvent, DataElement: "deFlag"},
		{Name: "absent", Source: SourceDataElementCurrentEvent, DataElement: "deUnknown"},
	}
	vars := resolve(t, ResolveInput{
		Declarations: decls,
		Scope:        scopeOf(ev, ev),
		DataElements: map[string]DataElementMeta{
			"deNum":  {ID: "deNum", ValueType: TypeNumber},
			"deTxt":  {ID: "deTxt", ValueType: TypeText},
			"deFlag": {ID: "deFlag", ValueType: TypeBoolean},
		},
	})

	tests := []struct {
		name string
		want string
	}{
		{"num", "0"},
		{"txt", "''"},
		{"flag", "false"},
		{"absent", "''"}, // unknown element defaults to TEXT
	}
	for _, tt := range tests {
		v, ok := vars[VariableKey{'#', tt.name}]
		if !ok {
			t.Errorf("variable %s missing from map", tt.name)
			continue
		}
		if v.HasValue {
			t.Errorf("variable %s: HasValue = true, want false", tt.name)
		}
		if v.Value != tt.want {
			t.Errorf("variable %s: Value = %q, want %q", tt.name, v.Value, tt.want)
		}
	}
}

func TestResolveVariables_PreviousEvent(t *testing.T) {
	first := testEvent("ev1", "stage1", "2020-01-01", map[string]string{"de1": "10"})
	second := testEvent("ev2", "stage1", "2020-01-05", map[string]string{"de1": "20"})

	vars := resolve(t, ResolveInput{
		Declarations: []VariableDecl{{Name: "prev", Source: SourceDataElementPrevious, DataElement: "de1"}},
		Scope:        scopeOf(second, first, second),
		DataElements: map[string]DataElementMeta{"de1": {ID: "de1", ValueType: TypeInteger}},
	})

	v := vars[VariableKey{'#', "prev"}]
	if !v.HasValue || v.Value != "10" {
		t.Errorf("previous-event value = %+v, want 10 from 2020-01-01", v)
	}

	// Executing on the earlier (only) event yields no previous value.
	vars = resolve(t, ResolveInput{
		Declarations: []VariableDecl{{Name: "prev", Source: SourceDataElementPrevious, DataElement: "de1"}},
		Scope:        scopeOf(first, first),
		DataElements: map[string]DataElementMeta{"de1": {ID: "de1", ValueType: TypeInteger}},
	})
	v = vars[VariableKey{'#', "prev"}]
	if v.HasValue {
		t.Errorf("single-event scope: HasValue = true, want false")
	}
}

func TestResolveVariables_NewestEventProgram(t *testing.T) {
	e1 := testEvent("ev1", "stage1", "2020-01-01", map[string]string{"de1": "a"})
	e2 := testEvent("ev2", "stage2", "2020-02-01", map[string]string{"de1": "b"})
	e3 := testEvent("ev3", "stage1", "2020-03-01", nil)

	vars := resolve(t, ResolveInput{
		Declarations: []VariableDecl{{Name: "newest", Source: SourceDataElementNewest, DataElement: "de1"}},
		Scope:        scopeOf(e3, e1, e2, e3),
		DataElements: map[string]DataElementMeta{"de1": {ID: "de1", ValueType: TypeText}},
	})

	v := vars[VariableKey{'#', "newest"}]
	if v.Value != "'b'" {
		t.Errorf("newest value = %q, want 'b' (last in ascending iteration)", v.Value)
	}
	if len(v.AllValues) != 2 || v.AllValues[0] != "a" || v.AllValues[1] != "b" {
		t.Errorf("AllValues = %v, want [a b]", v.AllValues)
	}
}

func TestResolveVariables_NewestEventProgramStage(t *testing.T) {
	e1 := testEvent("ev1", "stage1", "2020-01-01", map[string]string{"de1": "a"})
	e2 := testEvent("ev2", "stage2", "2020-02-01", map[string]string{"de1": "b"})

	vars := resolve(t, ResolveInput{
		Declarations: []VariableDecl{{
			Name: "staged", Source: SourceDataElementNewestStage,
			DataElement: "de1", ProgramStage: "stage1",
		}},
		Scope:        scopeOf(e2, e1, e2),
		DataElements: map[string]DataElementMeta{"de1": {ID: "de1", ValueType: TypeText}},
	})

	v := vars[VariableKey{'#', "staged"}]
	if v.Value != "'a'" {
		t.Errorf("stage-scoped newest = %q, want 'a'", v.Value)
	}
}

func TestResolveVariables_OptionCodeTranslation(t *testing.T) {
	optionSet := &OptionSet{ID: "os1", Options: []Option{
		{Code: "M", Name: "Male"},
		{Code: "F", Name: "Female"},
	}}
	ev := testEvent("ev1", "stage1", "2020-06-10", map[string]string{"de1": "Female"})

	vars := resolve(t, ResolveInput{
		Declarations: []VariableDecl{{
			Name: "sex", Source: SourceDataElementCurrentEvent,
			DataElement: "de1", UseCodeForOptionSet: true,
		}},
		Scope:        scopeOf(ev, ev),
		DataElements: map[string]DataElementMeta{"de1": {ID: "de1", ValueType: TypeText, OptionSet: optionSet}},
	})

	v := vars[VariableKey{'#', "sex"}]
	if v.Value != "'F'" {
		t.Errorf("option-translated value = %q, want 'F'", v.Value)
	}

	// The reverse direction restores the display name.
	if name, ok := optionSet.NameForCode("F"); !ok || name != "Female" {
		t.Errorf("NameForCode(F) = %q, want Female", name)
	}
	if code, ok := optionSet.CodeForName("Female"); !ok || code != "F" {
		t.Errorf("CodeForName(Female) = %q, want F", code)
	}
}

func TestResolveVariables_TEIAttribute(t *testing.T) {
	ev := testEvent("ev1", "stage1", "2020-06-10", nil)
	scope := scopeOf(ev, ev)
	scope.Enrollment = &Enrollment{
		UID:            "en1",
		EnrollmentDate: "2020-01-01",
		Attributes: []AttributeValue{
			{Attribute: "attr1", Value: "Nairobi"},
		},
	}

	vars := resolve(t, ResolveInput{
		Declarations: []VariableDecl{
			{Name: "city", Source: SourceTEIAttribute, Attribute: "attr1"},
			{Name: "missing", Source: SourceTEIAttribute, Attribute: "attr2"},
		},
		Scope:      scope,
		Attributes: map[string]AttributeMeta{"attr1": {ID: "attr1", ValueType: TypeText}},
	})

	if v := vars[VariableKey{'A', "city"}]; !v.HasValue || v.Value != "'Nairobi'" {
		t.Errorf("attribute variable = %+v, want 'Nairobi'", v)
	}
	if v := vars[VariableKey{'A', "missing"}]; v.HasValue {
		t.Errorf("missing attribute: HasValue = true, want false")
	}
}

func TestResolveVariables_CalculatedValueStartsEmpty(t *testing.T) {
	ev := testEvent("ev1", "stage1", "2020-06-10", nil)
	vars := resolve(t, ResolveInput{
		Declarations: []VariableDecl{{Name: "calc", Source: SourceCalculatedValue}},
		Scope:        scopeOf(ev, ev),
	})
	v := vars[VariableKey{'#', "calc"}]
	if v == nil || v.HasValue {
		t.Errorf("calculated variable = %+v, want empty entry", v)
	}
}

func TestResolveVariables_ContextVariablesAndConstants(t *testing.T) {
	ev := testEvent("ev1", "stage1", "2020-06-10", nil)
	scope := scopeOf(ev, ev)
	scope.Enrollment = &Enrollment{UID: "en1", EnrollmentDate: "2020-01-01", IncidentDate: "2019-12-20"}
	scope.Entity = &TrackedEntity{UID: "tei1"}

	vars := resolve(t, ResolveInput{
		Declarations: nil,
		Scope:        scope,
		Constants:    []Constant{{ID: "pi", Value: 3.14}},
	})

	tests := []struct {
		name string
		want string
	}{
		{"current_date", "'2020-06-15'"},
		{"event_date", "'2020-06-10'"},
		{"due_date", "'2020-06-10'"},
		{"event_id", "'ev1'"},
		{"event_count", "1"},
		{"enrollment_date", "'2020-01-01'"},
		{"incident_date", "'2019-12-20'"},
		{"enrollment_id", "'en1'"},
		{"enrollment_count", "1"},
		{"tei_count", "1"},
	}
	for _, tt := range tests {
		v, ok := vars[VariableKey{'V', tt.name}]
		if !ok {
			t.Errorf("context variable %s missing", tt.name)
			continue
		}
		if v.Value != tt.want {
			t.Errorf("V{%s} = %q, want %q", tt.name, v.Value, tt.want)
		}
	}

	if v, ok := vars[VariableKey{'C', "pi"}]; !ok || v.Value != "3.14" {
		t.Errorf("constant pi = %+v, want 3.14", v)
	}
}
