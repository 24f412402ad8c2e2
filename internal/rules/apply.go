package rules

// Message is one user-facing warning or error produced by a SHOWWARNING or
// SHOWERROR effect. Field identifies the offending data element or
// attribute; Content is the configured static text and Data the evaluated
// dynamic part.
type Message struct {
	Field   string
	Content string
	Data    string
}

// ApplyResult is the consumer-facing summary of one effect set applied to
// form state.
type ApplyResult struct {
	HiddenFields   map[string]bool
	HiddenSections map[string]bool
	AssignedFields map[string]bool
	Warnings       []Message
	Errors         []Message
	KeyValuePairs  map[string]string
}

// ApplyEffects folds a context's effects into the executing event and
// selected entity. ASSIGN writes values into the event or entity, HIDEFIELD
// blanks any value the hidden field holds, and SHOWERROR rolls the
// offending field back to the value it had before the pass (taken from
// prior, a snapshot of the field values keyed by field id).
func ApplyEffects(effects []*RuleEffect, event *Event, entity *TrackedEntity, prior map[string]string) *ApplyResult {
	res := &ApplyResult{
		HiddenFields:   make(map[string]bool),
		HiddenSections: make(map[string]bool),
		AssignedFields: make(map[string]bool),
		KeyValuePairs:  make(map[string]string),
	}

	for _, eff := range effects {
		if !eff.InEffect {
			continue
		}
		switch eff.Action {
		case ActionAssign:
			applyAssign(eff, event, entity, res)
		case ActionHideField:
			field := effectField(eff)
			res.HiddenFields[field] = true
			if event != nil && eff.DataElement != "" {
				delete(event.Values, eff.DataElement)
			}
		case ActionHideSection:
			res.HiddenSections[eff.ProgramStageSection] = true
		case ActionShowWarning:
			res.Warnings = append(res.Warnings, Message{
				Field:   effectField(eff),
				Content: eff.Content,
				Data:    eff.Data,
			})
		case ActionShowError:
			field := effectField(eff)
			res.Errors = append(res.Errors, Message{
				Field:   field,
				Content: eff.Content,
				Data:    eff.Data,
			})
			rollbackField(eff, event, entity, prior)
		case ActionDisplayKeyValuePair:
			key := eff.Content
			if key == "" {
				key = eff.ID
			}
			res.KeyValuePairs[key] = eff.Data
		}
	}
	return res
}

func effectField(eff *RuleEffect) string {
	if eff.DataElement != "" {
		return eff.DataElement
	}
	return eff.TrackedEntityAttribute
}

func applyAssign(eff *RuleEffect, event *Event, entity *TrackedEntity, res *ApplyResult) {
	switch {
	case eff.DataElement != "" && event != nil:
		if event.Values == nil {
			event.Values = make(map[string]string)
		}
		event.Values[eff.DataElement] = eff.Data
		res.AssignedFields[eff.DataElement] = true
	case eff.TrackedEntityAttribute != "" && entity != nil:
		setAttribute(entity, eff.TrackedEntityAttribute, eff.Data)
		res.AssignedFields[eff.TrackedEntityAttribute] = true
	}
}

func rollbackField(eff *RuleEffect, event *Event, entity *TrackedEntity, prior map[string]string) {
	if prior == nil {
		return
	}
	switch {
	case eff.DataElement != "" && event != nil:
		if old, ok := prior[eff.DataElement]; ok {
			event.Values[eff.DataElement] = old
		} else {
			delete(event.Values, eff.DataElement)
		}
	case eff.TrackedEntityAttribute != "" && entity != nil:
		if old, ok := prior[eff.TrackedEntityAttribute]; ok {
			setAttribute(entity, eff.TrackedEntityAttribute, old)
		}
	}
}

func setAttribute(entity *TrackedEntity, attribute, value string) {
	for i := range entity.Attributes {
		if entity.Attributes[i].Attribute == attribute {
			entity.Attributes[i].Value = value
			return
		}
	}
	entity.Attributes = append(entity.Attributes, AttributeValue{Attribute: attribute, Value: value})
}
