package program

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/trackercapture/tracker/internal/rules"
)

type Service struct {
	programs ProgramRepository
	elements ElementRepository
	rules    RuleRepository
}

func NewService(programs ProgramRepository, elements ElementRepository, ruleRepo RuleRepository) *Service {
	return &Service{
		programs: programs,
		elements: elements,
		rules:    ruleRepo,
	}
}

// -- Program --

func (s *Service) CreateProgram(ctx context.Context, p *Program) error {
	if p.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.programs.Create(ctx, p)
}

func (s *Service) GetProgram(ctx context.Context, uid string) (*Program, error) {
	return s.programs.GetByUID(ctx, uid)
}

func (s *Service) ListPrograms(ctx context.Context, limit, offset int) ([]*Program, int, error) {
	return s.programs.List(ctx, limit, offset)
}

func (s *Service) UpdateProgram(ctx context.Context, p *Program) error {
	return s.programs.Update(ctx, p)
}

func (s *Service) DeleteProgram(ctx context.Context, id uuid.UUID) error {
	return s.programs.Delete(ctx, id)
}

// -- Stage --

func (s *Service) CreateStage(ctx context.Context, st *Stage) error {
	if st.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if st.ProgramUID == "" {
		return fmt.Errorf("program_uid is required")
	}
	if _, err := s.programs.GetByUID(ctx, st.ProgramUID); err != nil {
		return fmt.Errorf("program %s: %w", st.ProgramUID, err)
	}
	return s.programs.CreateStage(ctx, st)
}

func (s *Service) ListStages(ctx context.Context, programUID string) ([]*Stage, error) {
	return s.programs.ListStages(ctx, programUID)
}

func (s *Service) AddStageElement(ctx context.Context, e *StageElement) error {
	if e.StageUID == "" {
		return fmt.Errorf("stage_uid is required")
	}
	if e.DataElementUID == "" {
		return fmt.Errorf("data_element_uid is required")
	}
	return s.programs.AddStageElement(ctx, e)
}

func (s *Service) ListStageElements(ctx context.Context, stageUID string) ([]*StageElement, error) {
	return s.programs.ListStageElements(ctx, stageUID)
}

// -- Metadata --

func (s *Service) CreateDataElement(ctx context.Context, de *DataElement) error {
	if de.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if de.ValueType == "" {
		de.ValueType = string(rules.TypeText)
	}
	return s.elements.CreateDataElement(ctx, de)
}

func (s *Service) ListDataElements(ctx context.Context, limit, offset int) ([]*DataElement, int, error) {
	return s.elements.ListDataElements(ctx, limit, offset)
}

func (s *Service) CreateAttribute(ctx context.Context, a *Attribute) error {
	if a.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if a.ValueType == "" {
		a.ValueType = string(rules.TypeText)
	}
	return s.elements.CreateAttribute(ctx, a)
}

func (s *Service) ListAttributes(ctx context.Context) ([]*Attribute, error) {
	return s.elements.ListAttributes(ctx)
}

func (s *Service) CreateOptionSet(ctx context.Context, os *OptionSet) error {
	if os.UID == "" {
		return fmt.Errorf("uid is required")
	}
	return s.elements.CreateOptionSet(ctx, os)
}

func (s *Service) AddOption(ctx context.Context, o *Option) error {
	if o.OptionSetUID == "" {
		return fmt.Errorf("option_set_uid is required")
	}
	if o.Code == "" {
		return fmt.Errorf("code is required")
	}
	return s.elements.AddOption(ctx, o)
}

func (s *Service) ListOptions(ctx context.Context, optionSetUID string) ([]*Option, error) {
	return s.elements.ListOptions(ctx, optionSetUID)
}

func (s *Service) CreateConstant(ctx context.Context, c *Constant) error {
	if c.UID == "" {
		return fmt.Errorf("uid is required")
	}
	return s.elements.CreateConstant(ctx, c)
}

func (s *Service) ListConstants(ctx context.Context) ([]*Constant, error) {
	return s.elements.ListConstants(ctx)
}

// -- Rules --

var validActionTypes = map[string]bool{
	string(rules.ActionAssign):              true,
	string(rules.ActionHideField):           true,
	string(rules.ActionHideSection):         true,
	string(rules.ActionShowWarning):         true,
	string(rules.ActionShowError):           true,
	string(rules.ActionCreateEvent):         true,
	string(rules.ActionDisplayKeyValuePair): true,
}

var validSourceTypes = map[string]bool{
	string(rules.SourceDataElementCurrentEvent): true,
	string(rules.SourceDataElementPrevious):     true,
	string(rules.SourceDataElementNewest):       true,
	string(rules.SourceDataElementNewestStage):  true,
	string(rules.SourceTEIAttribute):            true,
	string(rules.SourceCalculatedValue):         true,
}

func (s *Service) CreateRule(ctx context.Context, r *Rule) error {
	if r.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if r.ProgramUID == "" {
		return fmt.Errorf("program_uid is required")
	}
	if r.Condition == "" {
		return fmt.Errorf("condition is required")
	}
	return s.rules.CreateRule(ctx, r)
}

func (s *Service) GetRule(ctx context.Context, uid string) (*Rule, error) {
	return s.rules.GetRuleByUID(ctx, uid)
}

func (s *Service) ListRules(ctx context.Context, programUID string) ([]*Rule, error) {
	return s.rules.ListRules(ctx, programUID)
}

func (s *Service) UpdateRule(ctx context.Context, r *Rule) error {
	return s.rules.UpdateRule(ctx, r)
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return s.rules.DeleteRule(ctx, id)
}

func (s *Service) AddAction(ctx context.Context, a *RuleAction) error {
	if a.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if a.RuleUID == "" {
		return fmt.Errorf("rule_uid is required")
	}
	if !validActionTypes[a.ActionType] {
		return fmt.Errorf("invalid action_type %q", a.ActionType)
	}
	return s.rules.AddAction(ctx, a)
}

func (s *Service) ListActions(ctx context.Context, ruleUID string) ([]*RuleAction, error) {
	return s.rules.ListActions(ctx, ruleUID)
}

func (s *Service) CreateVariable(ctx context.Context, v *RuleVariable) error {
	if v.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if v.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validSourceTypes[v.SourceType] {
		return fmt.Errorf("invalid source_type %q", v.SourceType)
	}
	return s.rules.CreateVariable(ctx, v)
}

func (s *Service) ListVariables(ctx context.Context, programUID string) ([]*RuleVariable, error) {
	return s.rules.ListVariables(ctx, programUID)
}

func (s *Service) CreateIndicator(ctx context.Context, ind *Indicator) error {
	if ind.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if ind.Expression == "" {
		return fmt.Errorf("expression is required")
	}
	return s.rules.CreateIndicator(ctx, ind)
}

func (s *Service) ListIndicators(ctx context.Context, programUID string) ([]*Indicator, error) {
	return s.rules.ListIndicators(ctx, programUID)
}

// EngineConfig assembles everything the rule engine needs to evaluate one
// program: its rules with their actions, the variable declarations, element
// and attribute metadata with option sets attached, constants, and the set
// of display-only stages. Indicators are appended as synthetic display
// rules.
func (s *Service) EngineConfig(ctx context.Context, programUID string) (*rules.ProgramConfig, error) {
	if _, err := s.programs.GetByUID(ctx, programUID); err != nil {
		return nil, fmt.Errorf("program %s: %w", programUID, err)
	}

	optionSets := map[string]*rules.OptionSet{}
	loadOptionSet := func(uid *string) (*rules.OptionSet, error) {
		if uid == nil || *uid == "" {
			return nil, nil
		}
		if set, ok := optionSets[*uid]; ok {
			return set, nil
		}
		options, err := s.elements.ListOptions(ctx, *uid)
		if err != nil {
			return nil, fmt.Errorf("option set %s: %w", *uid, err)
		}
		set := &rules.OptionSet{ID: *uid}
		for _, o := range options {
			set.Options = append(set.Options, rules.Option{Code: o.Code, Name: o.Name})
		}
		optionSets[*uid] = set
		return set, nil
	}

	cfg := &rules.ProgramConfig{
		DataElements:        map[string]rules.DataElementMeta{},
		Attributes:          map[string]rules.AttributeMeta{},
		NonPersistentStages: map[string]bool{},
	}

	elements, _, err := s.elements.ListDataElements(ctx, 10000, 0)
	if err != nil {
		return nil, fmt.Errorf("list data elements: %w", err)
	}
	for _, de := range elements {
		set, err := loadOptionSet(de.OptionSetUID)
		if err != nil {
			return nil, err
		}
		cfg.DataElements[de.UID] = rules.DataElementMeta{
			ID:        de.UID,
			ValueType: rules.ValueType(de.ValueType),
			OptionSet: set,
		}
	}

	attributes, err := s.elements.ListAttributes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	for _, a := range attributes {
		set, err := loadOptionSet(a.OptionSetUID)
		if err != nil {
			return nil, err
		}
		cfg.Attributes[a.UID] = rules.AttributeMeta{
			ID:        a.UID,
			ValueType: rules.ValueType(a.ValueType),
			OptionSet: set,
		}
	}

	constants, err := s.elements.ListConstants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list constants: %w", err)
	}
	for _, c := range constants {
		cfg.Constants = append(cfg.Constants, rules.Constant{ID: c.UID, Value: c.Value})
	}

	stages, err := s.programs.ListStages(ctx, programUID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	for _, st := range stages {
		if st.DisplayOnly {
			cfg.NonPersistentStages[st.UID] = true
		}
	}

	stored, err := s.rules.ListRules(ctx, programUID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	for _, r := range stored {
		engineRule := rules.Rule{
			ID:           r.UID,
			Program:      r.ProgramUID,
			ProgramStage: deref(r.StageUID),
			Condition:    r.Condition,
			Priority:     r.Priority,
		}
		actions, err := s.rules.ListActions(ctx, r.UID)
		if err != nil {
			return nil, fmt.Errorf("rule %s actions: %w", r.UID, err)
		}
		for _, a := range actions {
			engineRule.Actions = append(engineRule.Actions, rules.RuleAction{
				ID:                     a.UID,
				Action:                 rules.ActionKind(a.ActionType),
				Location:               deref(a.Location),
				DataElement:            deref(a.DataElement),
				TrackedEntityAttribute: deref(a.Attribute),
				ProgramStage:           deref(a.StageUID),
				ProgramStageSection:    deref(a.SectionUID),
				Content:                deref(a.Content),
				Data:                   deref(a.Data),
			})
		}
		cfg.Rules = append(cfg.Rules, engineRule)
	}

	indicators, err := s.rules.ListIndicators(ctx, programUID)
	if err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	if len(indicators) > 0 {
		defs := make([]rules.Indicator, 0, len(indicators))
		for _, ind := range indicators {
			defs = append(defs, rules.Indicator{
				ID:          ind.UID,
				Program:     ind.ProgramUID,
				DisplayName: ind.DisplayName,
				Filter:      deref(ind.Filter),
				Expression:  ind.Expression,
			})
		}
		cfg.Rules = append(cfg.Rules, rules.RulesFromIndicators(defs)...)
	}

	variables, err := s.rules.ListVariables(ctx, programUID)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	for _, v := range variables {
		cfg.Declarations = append(cfg.Declarations, rules.VariableDecl{
			Name:                v.Name,
			Source:              rules.SourceType(v.SourceType),
			DataElement:         deref(v.DataElement),
			Attribute:           deref(v.Attribute),
			ProgramStage:        deref(v.StageUID),
			UseCodeForOptionSet: v.UseCodeForOptionSet,
		})
	}

	return cfg, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
