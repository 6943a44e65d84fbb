package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/thefounder-seb/btmg/internal/apperr"
)

// compileProps builds a validator over a declared property set. strict
// rejects keys outside the declaration.
func compileProps(owner string, defs map[string]PropertyDef, strict bool) (Validator, error) {
	for name, def := range defs {
		if def.Kind == "" {
			return nil, fmt.Errorf("schema: %s.%s: missing kind", owner, name)
		}
		switch def.Kind {
		case KindString, KindNumber, KindBoolean, KindDate, KindURL, KindEmail, KindStringList, KindJSON:
		case KindEnum:
			if len(def.Values) == 0 {
				return nil, fmt.Errorf("schema: %s.%s: enum with no members", owner, name)
			}
		default:
			return nil, fmt.Errorf("schema: %s.%s: unknown kind %q", owner, name, def.Kind)
		}
		if def.Default != nil {
			if _, msg := checkValue(def, def.Default); msg != "" {
				return nil, fmt.Errorf("schema: %s.%s: default %s", owner, name, msg)
			}
		}
	}

	// Stable iteration keeps error ordering deterministic.
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(props map[string]any) (map[string]any, *apperr.ValidationError) {
		var fields []apperr.FieldError
		out := make(map[string]any, len(defs))

		if strict {
			unknown := make([]string, 0)
			for k := range props {
				if _, ok := defs[k]; !ok {
					unknown = append(unknown, k)
				}
			}
			sort.Strings(unknown)
			for _, k := range unknown {
				fields = append(fields, apperr.FieldError{Path: k, Message: "unknown property"})
			}
		}

		for _, name := range names {
			def := defs[name]
			raw, present := props[name]
			if !present {
				if def.Default != nil {
					norm, _ := checkValue(def, def.Default)
					out[name] = norm
				} else if def.Required {
					fields = append(fields, apperr.FieldError{Path: name, Message: "required property missing"})
				}
				continue
			}
			norm, msg := checkValue(def, raw)
			if msg != "" {
				fields = append(fields, apperr.FieldError{Path: name, Message: msg})
				continue
			}
			out[name] = norm
		}

		if len(fields) > 0 {
			return nil, &apperr.ValidationError{Label: owner, Fields: fields}
		}
		return out, nil
	}, nil
}

// checkValue validates one value against its declaration and returns the
// normalized form, or a non-empty message on rejection.
func checkValue(def PropertyDef, raw any) (any, string) {
	switch def.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, "expected string"
		}
		return s, ""

	case KindNumber:
		switch v := raw.(type) {
		case int:
			return float64(v), ""
		case int64:
			return float64(v), ""
		case float64:
			return v, ""
		case float32:
			return float64(v), ""
		default:
			return nil, "expected number"
		}

	case KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, "expected boolean"
		}
		return b, ""

	case KindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, "expected ISO-8601 date string"
		}
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return s, ""
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return s, ""
		}
		return nil, "not an ISO-8601 date or date-time"

	case KindURL:
		s, ok := raw.(string)
		if !ok {
			return nil, "expected URL string"
		}
		if err := is.URL.Validate(s); err != nil {
			return nil, "not a valid URL"
		}
		return s, ""

	case KindEmail:
		s, ok := raw.(string)
		if !ok {
			return nil, "expected email string"
		}
		if err := is.Email.Validate(s); err != nil {
			return nil, "not a valid email address"
		}
		return s, ""

	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, "expected enum string"
		}
		for _, member := range def.Values {
			if strings.EqualFold(member, s) {
				return member, ""
			}
		}
		return nil, fmt.Sprintf("not one of [%s]", strings.Join(def.Values, ", "))

	case KindStringList:
		switch v := raw.(type) {
		case []string:
			return v, ""
		case []any:
			out := make([]string, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Sprintf("element %d is not a string", i)
				}
				out[i] = s
			}
			return out, ""
		default:
			return nil, "expected list of strings"
		}

	case KindJSON:
		return raw, ""
	}
	return nil, "unknown kind"
}
