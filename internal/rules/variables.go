package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ResolveInput carries everything the variable resolver reads.
type ResolveInput struct {
	Declarations []VariableDecl
	Scope        *Scope
	DataElements map[string]DataElementMeta
	Attributes   map[string]AttributeMeta
	Constants    []Constant
	Now          time.Time
}

// ResolveVariables produces the name→Variable mapping for one evaluation
// pass. Every declared variable gets exactly one entry: declarations whose
// source yields nothing still resolve with HasValue=false and a
// type-correct empty default, so every reference in an expression is
// always definable. Fixed context variables and one variable per constant
// are appended after the declarations.
func ResolveVariables(in ResolveInput, log zerolog.Logger) VariableMap {
	vars := make(VariableMap, len(in.Declarations)+12+len(in.Constants))

	for _, decl := range in.Declarations {
		vars[VariableKey{Prefix: sigilForDecl(decl), Name: decl.Name}] = resolveDeclaration(decl, in, log)
	}

	appendContextVariables(vars, in)

	for _, c := range in.Constants {
		vars[VariableKey{Prefix: 'C', Name: c.ID}] = &Variable{
			Value:    formatFloat(c.Value),
			Type:     TypeNumber,
			HasValue: true,
			Prefix:   'C',
		}
	}

	return vars
}

func sigilForDecl(decl VariableDecl) byte {
	if decl.Source == SourceTEIAttribute {
		return 'A'
	}
	return '#'
}

func resolveDeclaration(decl VariableDecl, in ResolveInput, log zerolog.Logger) *Variable {
	prefix := sigilForDecl(decl)

	switch decl.Source {
	case SourceDataElementCurrentEvent:
		return resolveCurrentEvent(decl, in, prefix)
	case SourceDataElementPrevious:
		return resolvePreviousEvent(decl, in, prefix)
	case SourceDataElementNewest:
		return resolveNewest(decl, in.Scope.All, in, prefix)
	case SourceDataElementNewestStage:
		var events []*Event
		if in.Scope.ByStage != nil {
			events = in.Scope.ByStage[decl.ProgramStage]
		}
		return resolveNewest(decl, events, in, prefix)
	case SourceTEIAttribute:
		return resolveAttribute(decl, in, prefix)
	case SourceCalculatedValue:
		// Populated only by ASSIGN effects during engine execution.
		return emptyVariable(in.elementType(decl), prefix)
	default:
		log.Warn().Str("variable", decl.Name).Str("source", string(decl.Source)).
			Msg("unknown program rule variable source type")
		return emptyVariable(TypeText, prefix)
	}
}

func resolveCurrentEvent(decl VariableDecl, in ResolveInput, prefix byte) *Variable {
	typ := in.elementType(decl)
	ev := in.Scope.ExecutingEvent
	if ev == nil {
		return emptyVariable(typ, prefix)
	}
	raw, ok := ev.Values[decl.DataElement]
	if !ok || raw == "" {
		return emptyVariable(typ, prefix)
	}
	raw = in.translateOption(decl, raw)
	return &Variable{
		Value:     expressionLiteral(typ, raw),
		Type:      typ,
		HasValue:  true,
		EventDate: ev.EventDate,
		Prefix:    prefix,
		AllValues: []string{raw},
	}
}

// resolvePreviousEvent scans the ascending-ordered event window and keeps
// the most recent value found strictly before the executing event. With
// fewer than two events in scope there can be no previous value.
func resolvePreviousEvent(decl VariableDecl, in ResolveInput, prefix byte) *Variable {
	typ := in.elementType(decl)
	scope := in.Scope
	if scope.ExecutingEvent == nil || len(scope.All) < 2 {
		return emptyVariable(typ, prefix)
	}

	var raw, eventDate string
	found := false
	for _, ev := range scope.All {
		if ev.UID == scope.ExecutingEvent.UID {
			break
		}
		if v, ok := ev.Values[decl.DataElement]; ok && v != "" {
			raw, eventDate, found = v, ev.EventDate, true
		}
	}
	if !found {
		return emptyVariable(typ, prefix)
	}
	raw = in.translateOption(decl, raw)
	return &Variable{
		Value:     expressionLiteral(typ, raw),
		Type:      typ,
		HasValue:  true,
		EventDate: eventDate,
		Prefix:    prefix,
		AllValues: []string{raw},
	}
}

// resolveNewest collects every non-empty value across the given events in
// ascending date order; the last one encountered wins, so "newest" is the
// last value of the ascending iteration.
func resolveNewest(decl VariableDecl, events []*Event, in ResolveInput, prefix byte) *Variable {
	typ := in.elementType(decl)

	var all []string
	var raw, eventDate string
	found := false
	for _, ev := range events {
		if v, ok := ev.Values[decl.DataElement]; ok && v != "" {
			v = in.translateOption(decl, v)
			all = append(all, v)
			raw, eventDate, found = v, ev.EventDate, true
		}
	}
	if !found {
		return emptyVariable(typ, prefix)
	}
	return &Variable{
		Value:     expressionLiteral(typ, raw),
		Type:      typ,
		HasValue:  true,
		EventDate: eventDate,
		Prefix:    prefix,
		AllValues: all,
	}
}

func resolveAttribute(decl VariableDecl, in ResolveInput, prefix byte) *Variable {
	var typ ValueType = TypeText
	var optionSet *OptionSet
	if meta, ok := in.Attributes[decl.Attribute]; ok {
		typ = meta.ValueType
		optionSet = meta.OptionSet
	}

	var attrs []AttributeValue
	if in.Scope.Enrollment != nil {
		attrs = in.Scope.Enrollment.Attributes
	} else if in.Scope.Entity != nil {
		attrs = in.Scope.Entity.Attributes
	}

	for _, av := range attrs {
		if av.Attribute != decl.Attribute || av.Value == "" {
			continue
		}
		raw := av.Value
		if decl.UseCodeForOptionSet && optionSet != nil {
			if code, ok := optionSet.CodeForName(raw); ok {
				raw = code
			}
		}
		return &Variable{
			Value:     expressionLiteral(typ, raw),
			Type:      typ,
			HasValue:  true,
			Prefix:    prefix,
			AllValues: []string{raw},
		}
	}
	return emptyVariable(typ, prefix)
}

func appendContextVariables(vars VariableMap, in ResolveInput) {
	scope := in.Scope
	today := in.Now.Format("2006-01-02")

	put := func(name string, v *Variable) {
		v.Prefix = 'V'
		vars[VariableKey{Prefix: 'V', Name: name}] = v
	}

	putDate := func(name, date string) {
		if date == "" {
			put(name, &Variable{Value: "''", Type: TypeDate})
			return
		}
		put(name, &Variable{Value: quote(date), Type: TypeDate, HasValue: true})
	}
	putText := func(name, s string) {
		if s == "" {
			put(name, &Variable{Value: "''", Type: TypeText})
			return
		}
		put(name, &Variable{Value: quote(s), Type: TypeText, HasValue: true})
	}
	putCount := func(name string, n int) {
		put(name, &Variable{Value: strconv.Itoa(n), Type: TypeInteger, HasValue: true})
	}

	putDate("current_date", today)

	var eventDate, dueDate, eventID string
	if scope.ExecutingEvent != nil {
		eventDate = scope.ExecutingEvent.EventDate
		dueDate = scope.ExecutingEvent.DueDate
		eventID = scope.ExecutingEvent.UID
	}
	putDate("event_date", eventDate)
	putDate("due_date", dueDate)
	putText("event_id", eventID)
	putCount("event_count", len(scope.All))

	var enrollmentDate, incidentDate, enrollmentID string
	enrollmentCount := 0
	if scope.Enrollment != nil {
		enrollmentDate = scope.Enrollment.EnrollmentDate
		incidentDate = scope.Enrollment.IncidentDate
		enrollmentID = scope.Enrollment.UID
		enrollmentCount = 1
	}
	putDate("enrollment_date", enrollmentDate)
	putDate("incident_date", incidentDate)
	putText("enrollment_id", enrollmentID)
	putCount("enrollment_count", enrollmentCount)

	teiCount := 0
	if scope.Entity != nil {
		teiCount = 1
	}
	putCount("tei_count", teiCount)
}

// elementType looks up the declared value type of the variable's data
// element, defaulting to TEXT when the element is unknown to the program.
func (in ResolveInput) elementType(decl VariableDecl) ValueType {
	if meta, ok := in.DataElements[decl.DataElement]; ok && meta.ValueType != "" {
		return meta.ValueType
	}
	return TypeText
}

// translateOption is the one controlled vocabulary translation point: when
// the declaring data element has an option set and the variable requests
// codes, the raw value (an option display name) is replaced by the option
// code.
func (in ResolveInput) translateOption(decl VariableDecl, raw string) string {
	if !decl.UseCodeForOptionSet {
		return raw
	}
	meta, ok := in.DataElements[decl.DataElement]
	if !ok || meta.OptionSet == nil {
		return raw
	}
	if code, ok := meta.OptionSet.CodeForName(raw); ok {
		return code
	}
	return raw
}

func emptyVariable(typ ValueType, prefix byte) *Variable {
	return &Variable{Value: emptyDefault(typ), Type: typ, Prefix: prefix}
}

// emptyDefault is the type-correct default substituted for variables with
// no value.
func emptyDefault(typ ValueType) string {
	switch {
	case typ.Numeric():
		return "0"
	case typ == TypeBoolean || typ == TypeTrueOnly:
		return "false"
	default:
		return "''"
	}
}

// expressionLiteral renders a raw value as an expression-ready literal:
// numeric and boolean values substitute bare, everything else pre-quoted.
func expressionLiteral(typ ValueType, raw string) string {
	switch {
	case typ.Numeric():
		if _, err := strconv.ParseFloat(raw, 64); err == nil {
			return raw
		}
		return "0"
	case typ == TypeBoolean || typ == TypeTrueOnly:
		if raw == "true" || raw == "false" {
			return raw
		}
		return "false"
	default:
		return quote(raw)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
