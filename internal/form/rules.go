package form

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/pitabwire/console/model"
)

var validate = validator.New()

// Rule is one validation constraint on a field value.
type Rule struct {
	Kind    string
	Message string
	check   func(v any) bool
}

// Valid reports whether v satisfies the rule.
func (r Rule) Valid(v any) bool {
	if r.check == nil {
		return true
	}
	return r.check(v)
}

// Required fails on nil, blank strings and empty collections.
func Required(msg string) Rule {
	return Rule{Kind: model.RuleRequired, Message: msg, check: present}
}

// Pattern fails when a non-empty string does not match re.
func Pattern(re *regexp.Regexp, msg string) Rule {
	return Rule{Kind: model.RulePattern, Message: msg, check: func(v any) bool {
		s, ok := nonEmptyString(v)
		return !ok || re.MatchString(s)
	}}
}

// MinLength fails when a non-empty string is shorter than n runes.
func MinLength(n int, msg string) Rule {
	return Rule{Kind: model.RuleMinLength, Message: msg, check: func(v any) bool {
		s, ok := nonEmptyString(v)
		return !ok || utf8.RuneCountInString(s) >= n
	}}
}

// MaxLength fails when a string is longer than n runes.
func MaxLength(n int, msg string) Rule {
	return Rule{Kind: model.RuleMaxLength, Message: msg, check: func(v any) bool {
		s, ok := nonEmptyString(v)
		return !ok || utf8.RuneCountInString(s) <= n
	}}
}

// Email fails when a non-empty string is not an e-mail address.
func Email(msg string) Rule {
	return Rule{Kind: model.RuleEmail, Message: msg, check: func(v any) bool {
		s, ok := nonEmptyString(v)
		return !ok || validate.Var(s, "email") == nil
	}}
}

// RulesFromSpec builds rules from their declarative form.
func RulesFromSpec(specs []model.RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		msg := s.Message
		switch s.Kind {
		case model.RuleRequired:
			rules = append(rules, Required(msg))
		case model.RulePattern:
			re, err := regexp.Compile(s.Value)
			if err != nil {
				return nil, fmt.Errorf("form: rule %d: invalid pattern %q: %w", i, s.Value, err)
			}
			rules = append(rules, Pattern(re, msg))
		case model.RuleMinLength:
			rules = append(rules, MinLength(s.Length, msg))
		case model.RuleMaxLength:
			rules = append(rules, MaxLength(s.Length, msg))
		case model.RuleEmail:
			rules = append(rules, Email(msg))
		default:
			return nil, fmt.Errorf("form: rule %d: unknown kind %q", i, s.Kind)
		}
	}
	return rules, nil
}

// firstFailure returns the first rule v violates.
func firstFailure(rules []Rule, v any) (Rule, bool) {
	for _, r := range rules {
		if !r.Valid(v) {
			return r, true
		}
	}
	return Rule{}, false
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
