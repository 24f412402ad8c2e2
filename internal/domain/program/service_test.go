package program

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/trackercapture/tracker/internal/rules"
)

// ── Mock Repositories ──

type mockProgramRepo struct {
	programs map[string]*Program
	stages   map[string][]*Stage
	elements map[string][]*StageElement
}

func newMockProgramRepo() *mockProgramRepo {
	return &mockProgramRepo{
		programs: map[string]*Program{},
		stages:   map[string][]*Stage{},
		elements: map[string][]*StageElement{},
	}
}

func (m *mockProgramRepo) Create(_ context.Context, p *Program) error {
	p.ID = uuid.New()
	m.programs[p.UID] = p
	return nil
}
func (m *mockProgramRepo) GetByUID(_ context.Context, uid string) (*Program, error) {
	if p, ok := m.programs[uid]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("not found")
}
func (m *mockProgramRepo) List(_ context.Context, limit, offset int) ([]*Program, int, error) {
	var out []*Program
	for _, p := range m.programs {
		out = append(out, p)
	}
	return out, len(out), nil
}
func (m *mockProgramRepo) Update(_ context.Context, p *Program) error {
	m.programs[p.UID] = p
	return nil
}
func (m *mockProgramRepo) Delete(_ context.Context, id uuid.UUID) error {
	for uid, p := range m.programs {
		if p.ID == id {
			delete(m.programs, uid)
		}
	}
	return nil
}
func (m *mockProgramRepo) CreateStage(_ context.Context, s *Stage) error {
	s.ID = uuid.New()
	m.stages[s.ProgramUID] = append(m.stages[s.ProgramUID], s)
	return nil
}
func (m *mockProgramRepo) ListStages(_ context.Context, programUID string) ([]*Stage, error) {
	return m.stages[programUID], nil
}
func (m *mockProgramRepo) AddStageElement(_ context.Context, e *StageElement) error {
	e.ID = uuid.New()
	m.elements[e.StageUID] = append(m.elements[e.StageUID], e)
	return nil
}
func (m *mockProgramRepo) ListStageElements(_ context.Context, stageUID string) ([]*StageElement, error) {
	return m.elements[stageUID], nil
}

type mockElementRepo struct {
	dataElements []*DataElement
	attributes   []*Attribute
	optionSets   map[string]*OptionSet
	options      map[string][]*Option
	constants    []*Constant
}

func newMockElementRepo() *mockElementRepo {
	return &mockElementRepo{
		optionSets: map[string]*OptionSet{},
		options:    map[string][]*Option{},
	}
}

func (m *mockElementRepo) CreateDataElement(_ context.Context, de *DataElement) error {
	de.ID = uuid.New()
	m.dataElements = append(m.dataElements, de)
	return nil
}
func (m *mockElementRepo) ListDataElements(_ context.Context, limit, offset int) ([]*DataElement, int, error) {
	return m.dataElements, len(m.dataElements), nil
}
func (m *mockElementRepo) CreateAttribute(_ context.Context, a *Attribute) error {
	a.ID = uuid.New()
	m.attributes = append(m.attributes, a)
	return nil
}
func (m *mockElementRepo) ListAttributes(_ context.Context) ([]*Attribute, error) {
	return m.attributes, nil
}
func (m *mockElementRepo) CreateOptionSet(_ context.Context, os *OptionSet) error {
	os.ID = uuid.New()
	m.optionSets[os.UID] = os
	return nil
}
func (m *mockElementRepo) AddOption(_ context.Context, o *Option) error {
	o.ID = uuid.New()
	m.options[o.OptionSetUID] = append(m.options[o.OptionSetUID], o)
	return nil
}
func (m *mockElementRepo) ListOptions(_ context.Context, optionSetUID string) ([]*Option, error) {
	return m.options[optionSetUID], nil
}
func (m *mockElementRepo) CreateConstant(_ context.Context, c *Constant) error {
	c.ID = uuid.New()
	m.constants = append(m.constants, c)
	return nil
}
func (m *mockElementRepo) ListConstants(_ context.Context) ([]*Constant, error) {
	return m.constants, nil
}

type mockRuleRepo struct {
	rules      map[string]*Rule
	actions    map[string][]*RuleAction
	variables  map[string][]*RuleVariable
	indicators map[string][]*Indicator
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{
		rules:      map[string]*Rule{},
		actions:    map[string][]*RuleAction{},
		variables:  map[string][]*RuleVariable{},
		indicators: map[string][]*Indicator{},
	}
}

func (m *mockRuleRepo) CreateRule(_ context.Context, r *Rule) error {
	r.ID = uuid.New()
	m.rules[r.UID] = r
	return nil
}
func (m *mockRuleRepo) GetRuleByUID(_ context.Context, uid string) (*Rule, error) {
	if r, ok := m.rules[uid]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("not found")
}
func (m *mockRuleRepo) ListRules(_ context.Context, programUID string) ([]*Rule, error) {
	var out []*Rule
	for _, r := range m.rules {
		if r.ProgramUID == programUID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m *mockRuleRepo) UpdateRule(_ context.Context, r *Rule) error {
	m.rules[r.UID] = r
	return nil
}
func (m *mockRuleRepo) DeleteRule(_ context.Context, id uuid.UUID) error {
	for uid, r := range m.rules {
		if r.ID == id {
			delete(m.rules, uid)
		}
	}
	return nil
}
func (m *mockRuleRepo) AddAction(_ context.Context, a *RuleAction) error {
	a.ID = uuid.New()
	m.actions[a.RuleUID] = append(m.actions[a.RuleUID], a)
	return nil
}
func (m *mockRuleRepo) ListActions(_ context.Context, ruleUID string) ([]*RuleAction, error) {
	return m.actions[ruleUID], nil
}
func (m *mockRuleRepo) CreateVariable(_ context.Context, v *RuleVariable) error {
	v.ID = uuid.New()
	m.variables[v.ProgramUID] = append(m.variables[v.ProgramUID], v)
	return nil
}
func (m *mockRuleRepo) ListVariables(_ context.Context, programUID string) ([]*RuleVariable, error) {
	return m.variables[programUID], nil
}
func (m *mockRuleRepo) CreateIndicator(_ context.Context, ind *Indicator) error {
	ind.ID = uuid.New()
	m.indicators[ind.ProgramUID] = append(m.indicators[ind.ProgramUID], ind)
	return nil
}
func (m *mockRuleRepo) ListIndicators(_ context.Context, programUID string) ([]*Indicator, error) {
	return m.indicators[programUID], nil
}

func newTestService() (*Service, *mockProgramRepo, *mockElementRepo, *mockRuleRepo) {
	programs := newMockProgramRepo()
	elements := newMockElementRepo()
	ruleRepo := newMockRuleRepo()
	return NewService(programs, elements, ruleRepo), programs, elements, ruleRepo
}

func strPtr(s string) *string { return &s }

// ── Tests ──

func TestCreateProgramValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.CreateProgram(ctx, &Program{Name: "ANC"}); err == nil {
		t.Error("expected error for missing uid")
	}
	if err := svc.CreateProgram(ctx, &Program{UID: "prog1"}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := svc.CreateProgram(ctx, &Program{UID: "prog1", Name: "ANC"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateStageRequiresProgram(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	err := svc.CreateStage(ctx, &Stage{UID: "stage1", ProgramUID: "missing", Name: "Visit"})
	if err == nil {
		t.Error("expected error for unknown program")
	}

	if err := svc.CreateProgram(ctx, &Program{UID: "prog1", Name: "ANC"}); err != nil {
		t.Fatalf("create program: %v", err)
	}
	if err := svc.CreateStage(ctx, &Stage{UID: "stage1", ProgramUID: "prog1", Name: "Visit"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDataElementDefaultsToText(t *testing.T) {
	svc, _, elements, _ := newTestService()
	ctx := context.Background()

	if err := svc.CreateDataElement(ctx, &DataElement{UID: "de1", Name: "Weight"}); err != nil {
		t.Fatalf("create data element: %v", err)
	}
	if got := elements.dataElements[0].ValueType; got != "TEXT" {
		t.Errorf("value type = %q, want TEXT", got)
	}
}

func TestAddActionRejectsUnknownType(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	err := svc.AddAction(ctx, &RuleAction{UID: "act1", RuleUID: "rule1", ActionType: "EXPLODE"})
	if err == nil {
		t.Error("expected error for unknown action type")
	}
	err = svc.AddAction(ctx, &RuleAction{UID: "act1", RuleUID: "rule1", ActionType: "HIDEFIELD"})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateVariableRejectsUnknownSource(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	err := svc.CreateVariable(ctx, &RuleVariable{
		UID: "var1", ProgramUID: "prog1", Name: "weight", SourceType: "TAROT_CARDS",
	})
	if err == nil {
		t.Error("expected error for unknown source type")
	}
}

func TestEngineConfigUnknownProgram(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, err := svc.EngineConfig(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown program")
	}
}

func TestEngineConfigAssembly(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.CreateProgram(ctx, &Program{UID: "prog1", Name: "ANC", WithRegistration: true}); err != nil {
		t.Fatalf("create program: %v", err)
	}
	if err := svc.CreateStage(ctx, &Stage{UID: "stage1", ProgramUID: "prog1", Name: "Visit"}); err != nil {
		t.Fatalf("create stage: %v", err)
	}
	if err := svc.CreateStage(ctx, &Stage{UID: "stage2", ProgramUID: "prog1", Name: "Feedback", DisplayOnly: true}); err != nil {
		t.Fatalf("create stage: %v", err)
	}

	if err := svc.CreateOptionSet(ctx, &OptionSet{UID: "os1", Name: "Yes/No"}); err != nil {
		t.Fatalf("create option set: %v", err)
	}
	if err := svc.AddOption(ctx, &Option{OptionSetUID: "os1", Code: "Y", Name: "Yes"}); err != nil {
		t.Fatalf("add option: %v", err)
	}
	if err := svc.CreateDataElement(ctx, &DataElement{UID: "de1", Name: "Smoker", ValueType: "TEXT", OptionSetUID: strPtr("os1")}); err != nil {
		t.Fatalf("create data element: %v", err)
	}
	if err := svc.CreateAttribute(ctx, &Attribute{UID: "attr1", Name: "Age", ValueType: "INTEGER"}); err != nil {
		t.Fatalf("create attribute: %v", err)
	}
	if err := svc.CreateConstant(ctx, &Constant{UID: "pi", Name: "Pi", Value: 3.14}); err != nil {
		t.Fatalf("create constant: %v", err)
	}

	if err := svc.CreateRule(ctx, &Rule{UID: "rule1", ProgramUID: "prog1", Name: "hide", Condition: "#{smoker} == 'Y'"}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := svc.AddAction(ctx, &RuleAction{UID: "act1", RuleUID: "rule1", ActionType: "HIDEFIELD", DataElement: strPtr("de1")}); err != nil {
		t.Fatalf("add action: %v", err)
	}
	if err := svc.CreateVariable(ctx, &RuleVariable{
		UID: "var1", ProgramUID: "prog1", Name: "smoker",
		SourceType: "DATAELEMENT_CURRENT_EVENT", DataElement: strPtr("de1"),
	}); err != nil {
		t.Fatalf("create variable: %v", err)
	}
	if err := svc.CreateIndicator(ctx, &Indicator{
		UID: "ind1", ProgramUID: "prog1", DisplayName: "BMI", Expression: "#{weight} / 2",
	}); err != nil {
		t.Fatalf("create indicator: %v", err)
	}

	cfg, err := svc.EngineConfig(ctx, "prog1")
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}

	if len(cfg.Rules) != 2 {
		t.Fatalf("rules = %d, want 2 (stored rule + indicator)", len(cfg.Rules))
	}
	if cfg.Rules[0].ID != "rule1" || len(cfg.Rules[0].Actions) != 1 {
		t.Errorf("stored rule not assembled: %+v", cfg.Rules[0])
	}
	if cfg.Rules[0].Actions[0].Action != rules.ActionHideField {
		t.Errorf("action kind = %s, want HIDEFIELD", cfg.Rules[0].Actions[0].Action)
	}
	if cfg.Rules[1].ID != "indicator-ind1" {
		t.Errorf("synthetic rule id = %s, want indicator-ind1", cfg.Rules[1].ID)
	}

	de, ok := cfg.DataElements["de1"]
	if !ok {
		t.Fatal("data element de1 missing from config")
	}
	if de.OptionSet == nil || len(de.OptionSet.Options) != 1 {
		t.Errorf("option set not attached to de1: %+v", de.OptionSet)
	}
	if _, ok := cfg.Attributes["attr1"]; !ok {
		t.Error("attribute attr1 missing from config")
	}
	if len(cfg.Constants) != 1 || cfg.Constants[0].ID != "pi" {
		t.Errorf("constants = %+v", cfg.Constants)
	}
	if !cfg.NonPersistentStages["stage2"] || cfg.NonPersistentStages["stage1"] {
		t.Errorf("non-persistent stages = %+v", cfg.NonPersistentStages)
	}
	if len(cfg.Declarations) != 1 || cfg.Declarations[0].Source != rules.SourceDataElementCurrentEvent {
		t.Errorf("declarations = %+v", cfg.Declarations)
	}
}
