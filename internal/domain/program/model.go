package program

import (
	"time"

	"github.com/google/uuid"
)

// Program maps to the program table. UID is the stable business
// identifier used in API paths and cross-references; ID is the row key.
type Program struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UID              string    `db:"uid" json:"uid"`
	Name             string    `db:"name" json:"name"`
	Description      *string   `db:"description" json:"description,omitempty"`
	WithRegistration bool      `db:"with_registration" json:"with_registration"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Stage maps to the program_stage table. DisplayOnly marks a stage whose
// generated events are never persisted, only broadcast to the form.
type Stage struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UID         string    `db:"uid" json:"uid"`
	ProgramUID  string    `db:"program_uid" json:"program_uid"`
	Name        string    `db:"name" json:"name"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	Repeatable  bool      `db:"repeatable" json:"repeatable"`
	DisplayOnly bool      `db:"display_only" json:"display_only"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StageElement maps to the program_stage_data_element table, binding a
// data element into a stage's form.
type StageElement struct {
	ID             uuid.UUID `db:"id" json:"id"`
	StageUID       string    `db:"stage_uid" json:"stage_uid"`
	DataElementUID string    `db:"data_element_uid" json:"data_element_uid"`
	Compulsory     bool      `db:"compulsory" json:"compulsory"`
	SortOrder      int       `db:"sort_order" json:"sort_order"`
}

// DataElement maps to the data_element table.
type DataElement struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UID          string    `db:"uid" json:"uid"`
	Name         string    `db:"name" json:"name"`
	ValueType    string    `db:"value_type" json:"value_type"`
	OptionSetUID *string   `db:"option_set_uid" json:"option_set_uid,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Attribute maps to the tracked_entity_attribute table.
type Attribute struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UID          string    `db:"uid" json:"uid"`
	Name         string    `db:"name" json:"name"`
	ValueType    string    `db:"value_type" json:"value_type"`
	OptionSetUID *string   `db:"option_set_uid" json:"option_set_uid,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// OptionSet maps to the option_set table.
type OptionSet struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UID       string    `db:"uid" json:"uid"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Option maps to the option_item table: one code/name pair of a set.
type Option struct {
	ID           uuid.UUID `db:"id" json:"id"`
	OptionSetUID string    `db:"option_set_uid" json:"option_set_uid"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	SortOrder    int       `db:"sort_order" json:"sort_order"`
}

// Constant maps to the constant table; referenced in expressions as C{uid}.
type Constant struct {
	ID    uuid.UUID `db:"id" json:"id"`
	UID   string    `db:"uid" json:"uid"`
	Name  string    `db:"name" json:"name"`
	Value float64   `db:"value" json:"value"`
}

// Rule maps to the program_rule table. A null stage uid makes the rule
// program-wide.
type Rule struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UID          string    `db:"uid" json:"uid"`
	ProgramUID   string    `db:"program_uid" json:"program_uid"`
	StageUID     *string   `db:"stage_uid" json:"stage_uid,omitempty"`
	Name         string    `db:"name" json:"name"`
	Condition    string    `db:"condition" json:"condition"`
	Priority     *int      `db:"priority" json:"priority,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RuleAction maps to the program_rule_action table.
type RuleAction struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UID          string    `db:"uid" json:"uid"`
	RuleUID      string    `db:"rule_uid" json:"rule_uid"`
	ActionType   string    `db:"action_type" json:"action_type"`
	Location     *string   `db:"location" json:"location,omitempty"`
	DataElement  *string   `db:"data_element_uid" json:"data_element_uid,omitempty"`
	Attribute    *string   `db:"attribute_uid" json:"attribute_uid,omitempty"`
	StageUID     *string   `db:"stage_uid" json:"stage_uid,omitempty"`
	SectionUID   *string   `db:"section_uid" json:"section_uid,omitempty"`
	Content      *string   `db:"content" json:"content,omitempty"`
	Data         *string   `db:"data" json:"data,omitempty"`
}

// RuleVariable maps to the program_rule_variable table.
type RuleVariable struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	UID                 string    `db:"uid" json:"uid"`
	ProgramUID          string    `db:"program_uid" json:"program_uid"`
	Name                string    `db:"name" json:"name"`
	SourceType          string    `db:"source_type" json:"source_type"`
	DataElement         *string   `db:"data_element_uid" json:"data_element_uid,omitempty"`
	Attribute           *string   `db:"attribute_uid" json:"attribute_uid,omitempty"`
	StageUID            *string   `db:"stage_uid" json:"stage_uid,omitempty"`
	UseCodeForOptionSet bool      `db:"use_code_for_option_set" json:"use_code_for_option_set"`
}

// Indicator maps to the program_indicator table. Indicators are
// translated into synthetic display rules at engine-config time.
type Indicator struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UID         string    `db:"uid" json:"uid"`
	ProgramUID  string    `db:"program_uid" json:"program_uid"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Filter      *string   `db:"filter" json:"filter,omitempty"`
	Expression  string    `db:"expression" json:"expression"`
}
