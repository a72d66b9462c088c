package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// Item validation tags. Every schema field must be a JSON string; the
// reasoning must also carry text.
const (
	tagText       = "text"
	tagNotBlank   = "notblank"
	reasoningRule = "required," + tagNotBlank + "," + tagText
)

var itemValidator = newItemValidator()

func newItemValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation(tagText, func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String
	})
	_ = v.RegisterValidation(tagNotBlank, validators.NotBlank)
	return v
}

// itemRules maps each schema field to its validation rule.
func itemRules(schema domain.ResponseSchema) map[string]any {
	rules := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		if f.Name == domain.FieldReasoning {
			rules[f.Name] = reasoningRule
			continue
		}
		rules[f.Name] = tagText
	}
	return rules
}

// itemProblem describes why field failed validation in item.
func itemProblem(item map[string]any, field string, err error) string {
	if _, present := item[field]; !present {
		return fmt.Sprintf(" is missing %q", field)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "required", tagNotBlank:
			return " has empty " + field
		case tagText:
			return "." + field + " is not a string"
		}
	}
	return fmt.Sprintf(".%s is invalid: %v", field, err)
}

// ExtractJSON returns the text from the first '{' to the last '}'.
// Models often wrap JSON in prose or code fences. It reports false when
// no such span exists.
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseResponse extracts and validates a model response against schema.
// Items are checked with ValidateMap against rules derived from the
// schema fields. Every failure is an *domain.AnalysisFailure carrying the
// raw text.
func ParseResponse(raw string, schema domain.ResponseSchema) ([]domain.Violation, error) {
	fail := func(reason string, err error) error {
		return &domain.AnalysisFailure{Reason: reason, Raw: raw, Err: err}
	}

	span, ok := ExtractJSON(raw)
	if !ok {
		return nil, fail("no JSON object in response", nil)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &doc); err != nil {
		return nil, fail("response is not a JSON object", err)
	}

	rawItems, ok := doc[schema.ItemsKey]
	if !ok {
		return nil, fail(fmt.Sprintf("missing %q", schema.ItemsKey), nil)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil || items == nil {
		return nil, fail(fmt.Sprintf("%q is not an array", schema.ItemsKey), err)
	}

	rules := itemRules(schema)
	violations := make([]domain.Violation, 0, len(items))
	for i, item := range items {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			return nil, fail(fmt.Sprintf("%s[%d] is not an object", schema.ItemsKey, i), err)
		}

		if errs := itemValidator.ValidateMap(obj, rules); len(errs) > 0 {
			for _, f := range schema.Fields {
				if err, bad := errs[f.Name].(error); bad {
					return nil, fail(fmt.Sprintf("%s[%d]%s", schema.ItemsKey, i, itemProblem(obj, f.Name, err)), err)
				}
			}
		}

		v := domain.Violation{Fields: make(map[string]string, len(schema.Fields))}
		for _, f := range schema.Fields {
			val, _ := obj[f.Name].(string)
			if f.Name == domain.FieldReasoning {
				v.Reasoning = val
				continue
			}
			v.Fields[f.Name] = val
		}
		violations = append(violations, v)
	}

	return violations, nil
}
