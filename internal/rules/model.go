// Package rules implements the program rule engine: variable resolution
// across event scopes, macro substitution of variable references, the d2:
// domain function library, condition/data expression evaluation, and the
// effect cache that diffs outcomes between evaluation passes.
package rules

// ActionKind identifies the side effect a rule action produces.
type ActionKind string

const (
	ActionAssign              ActionKind = "ASSIGN"
	ActionHideField           ActionKind = "HIDEFIELD"
	ActionHideSection         ActionKind = "HIDESECTION"
	ActionShowWarning         ActionKind = "SHOWWARNING"
	ActionShowError           ActionKind = "SHOWERROR"
	ActionCreateEvent         ActionKind = "CREATEEVENT"
	ActionDisplayKeyValuePair ActionKind = "DISPLAYKEYVALUEPAIR"
)

// SourceType identifies where a program rule variable reads its value from.
type SourceType string

const (
	SourceDataElementCurrentEvent SourceType = "DATAELEMENT_CURRENT_EVENT"
	SourceDataElementPrevious     SourceType = "DATAELEMENT_PREVIOUS_EVENT"
	SourceDataElementNewest       SourceType = "DATAELEMENT_NEWEST_EVENT_PROGRAM"
	SourceDataElementNewestStage  SourceType = "DATAELEMENT_NEWEST_EVENT_PROGRAM_STAGE"
	SourceTEIAttribute            SourceType = "TEI_ATTRIBUTE"
	SourceCalculatedValue         SourceType = "CALCULATED_VALUE"
)

// CrossesEvents reports whether the source type reads values from events
// other than the executing one, which forces the scope loader to fetch
// sibling events.
func (s SourceType) CrossesEvents() bool {
	switch s {
	case SourceDataElementPrevious, SourceDataElementNewest, SourceDataElementNewestStage:
		return true
	}
	return false
}

// ValueType is the declared type of a data element, attribute or variable.
type ValueType string

const (
	TypeText     ValueType = "TEXT"
	TypeLongText ValueType = "LONG_TEXT"
	TypeDate     ValueType = "DATE"
	TypeNumber   ValueType = "NUMBER"
	TypeInteger  ValueType = "INTEGER"
	TypeBoolean  ValueType = "BOOLEAN"
	TypeTrueOnly ValueType = "TRUE_ONLY"
)

// Numeric reports whether values of this type substitute unquoted into
// expressions.
func (t ValueType) Numeric() bool {
	return t == TypeNumber || t == TypeInteger
}

// Rule is one program rule: a condition expression plus the actions taken
// when the condition holds. An empty ProgramStage marks a program-wide
// rule; otherwise the rule only applies when its stage is executing.
type Rule struct {
	ID           string
	Program      string
	ProgramStage string
	Condition    string
	Priority     *int
	Actions      []RuleAction
}

// RuleAction is a single effect template attached to a rule.
type RuleAction struct {
	ID                     string
	Action                 ActionKind
	Location               string
	DataElement            string
	TrackedEntityAttribute string
	ProgramStage           string
	ProgramStageSection    string
	Content                string
	Data                   string
}

// VariableDecl declares one program rule variable and its source.
type VariableDecl struct {
	Name                string
	Source              SourceType
	DataElement         string
	Attribute           string
	ProgramStage        string
	UseCodeForOptionSet bool
}

// Variable is one resolved variable. Value holds an expression-ready
// literal: text and date values are pre-quoted at resolve time, numeric and
// boolean values are bare. AllValues holds every raw (unquoted) value found
// across the event window for the aggregate d2: functions.
type Variable struct {
	Value     string
	Type      ValueType
	HasValue  bool
	EventDate string
	Prefix    byte
	AllValues []string
}

// VariableKey addresses a variable by sigil and name, so a reference is
// only resolved when both match.
type VariableKey struct {
	Prefix byte
	Name   string
}

// VariableMap is the shared resolver output for one evaluation pass.
type VariableMap map[VariableKey]*Variable

// Event is the engine's view of a captured event. Values maps data element
// ids to raw values.
type Event struct {
	UID          string
	Program      string
	ProgramStage string
	Enrollment   string
	OrgUnit      string
	Status       string
	EventDate    string
	DueDate      string
	Values       map[string]string
}

// AttributeValue is one tracked entity attribute value.
type AttributeValue struct {
	Attribute string
	Value     string
}

// Enrollment is the engine's view of the selected enrollment.
type Enrollment struct {
	UID            string
	EnrollmentDate string
	IncidentDate   string
	Attributes     []AttributeValue
}

// TrackedEntity is the engine's view of the selected tracked entity.
type TrackedEntity struct {
	UID        string
	Attributes []AttributeValue
}

// Scope is the bundle of data an evaluation pass reads from. All is
// ordered ascending by event date and always contains the executing event
// when evaluating at event scope.
type Scope struct {
	ExecutingEvent *Event
	All            []*Event
	ByStage        map[string][]*Event
	Enrollment     *Enrollment
	Entity         *TrackedEntity
}

// Option is one code/name pair of an option set.
type Option struct {
	Code string
	Name string
}

// OptionSet is a controlled vocabulary constraining a data element or
// attribute value.
type OptionSet struct {
	ID      string
	Options []Option
}

// CodeForName returns the code of the option whose name matches value.
func (s *OptionSet) CodeForName(name string) (string, bool) {
	for _, o := range s.Options {
		if o.Name == name {
			return o.Code, true
		}
	}
	return "", false
}

// NameForCode returns the display name of the option whose code matches.
func (s *OptionSet) NameForCode(code string) (string, bool) {
	for _, o := range s.Options {
		if o.Code == code {
			return o.Name, true
		}
	}
	return "", false
}

// DataElementMeta is the metadata the resolver needs about a data element.
type DataElementMeta struct {
	ID        string
	ValueType ValueType
	OptionSet *OptionSet
}

// AttributeMeta is the metadata the resolver needs about a tracked entity
// attribute.
type AttributeMeta struct {
	ID        string
	ValueType ValueType
	OptionSet *OptionSet
}

// Constant is a program-independent constant, referenced as C{id}.
type Constant struct {
	ID    string
	Value float64
}

// ProgramConfig bundles everything the engine needs to evaluate one
// program's rules.
type ProgramConfig struct {
	Rules               []Rule
	Declarations        []VariableDecl
	DataElements        map[string]DataElementMeta
	Attributes          map[string]AttributeMeta
	Constants           []Constant
	NonPersistentStages map[string]bool
}

// RuleEffect is the cached outcome of one rule action within one execution
// context. It is created lazily on first encounter and mutated in place on
// every subsequent pass; Data always holds the plain (unquoted) evaluated
// value.
type RuleEffect struct {
	ID                     string
	Action                 ActionKind
	Location               string
	DataElement            string
	TrackedEntityAttribute string
	ProgramStage           string
	ProgramStageSection    string
	Content                string
	Data                   string
	InEffect               bool
}

// SingleEventContext is the execution context tag used when capturing
// outside an enrollment, where no event uid exists yet.
const SingleEventContext = "SINGLE_EVENT"
