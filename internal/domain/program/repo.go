package program

import (
	"context"

	"github.com/google/uuid"
)

// ProgramRepository persists programs, their stages and stage elements.
type ProgramRepository interface {
	Create(ctx context.Context, p *Program) error
	GetByUID(ctx context.Context, uid string) (*Program, error)
	List(ctx context.Context, limit, offset int) ([]*Program, int, error)
	Update(ctx context.Context, p *Program) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateStage(ctx context.Context, s *Stage) error
	ListStages(ctx context.Context, programUID string) ([]*Stage, error)
	AddStageElement(ctx context.Context, e *StageElement) error
	ListStageElements(ctx context.Context, stageUID string) ([]*StageElement, error)
}

// ElementRepository persists data elements, tracked entity attributes,
// option sets and constants.
type ElementRepository interface {
	CreateDataElement(ctx context.Context, de *DataElement) error
	ListDataElements(ctx context.Context, limit, offset int) ([]*DataElement, int, error)
	CreateAttribute(ctx context.Context, a *Attribute) error
	ListAttributes(ctx context.Context) ([]*Attribute, error)
	CreateOptionSet(ctx context.Context, os *OptionSet) error
	AddOption(ctx context.Context, o *Option) error
	ListOptions(ctx context.Context, optionSetUID string) ([]*Option, error)
	CreateConstant(ctx context.Context, c *Constant) error
	ListConstants(ctx context.Context) ([]*Constant, error)
}

// RuleRepository persists program rules, their actions, the rule
// variables and the program indicators.
type RuleRepository interface {
	CreateRule(ctx context.Context, r *Rule) error
	GetRuleByUID(ctx context.Context, uid string) (*Rule, error)
	ListRules(ctx context.Context, programUID string) ([]*Rule, error)
	UpdateRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error

	AddAction(ctx context.Context, a *RuleAction) error
	ListActions(ctx context.Context, ruleUID string) ([]*RuleAction, error)

	CreateVariable(ctx context.Context, v *RuleVariable) error
	ListVariables(ctx context.Context, programUID string) ([]*RuleVariable, error)

	CreateIndicator(ctx context.Context, ind *Indicator) error
	ListIndicators(ctx context.Context, programUID string) ([]*Indicator, error)
}
