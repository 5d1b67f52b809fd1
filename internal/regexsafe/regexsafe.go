// Package regexsafe rejects regular expressions with shapes known to cause
// catastrophic backtracking, before they reach a backtracking engine.
//
// The check is a best-effort static filter. It catches quantified groups that
// already contain a quantifier, e.g. (a+)+ or (\w*)*, and patterns with more
// than one unbounded wildcard such as .*x.*y. It does not prove safety.
package regexsafe

import (
	"fmt"
	"regexp"
	"unicode"
)

// DefaultMaxLength is the longest accepted pattern, in runes.
const DefaultMaxLength = 256

// Reason explains a rejection.
type Reason string

const (
	ReasonTooLong           Reason = "pattern too long"
	ReasonNestedQuantifier  Reason = "nested quantifier"
	ReasonMultipleWildcards Reason = "multiple unbounded wildcards"
)

// Verdict is the result of Analyzer.Check.
type Verdict struct {
	Safe   bool
	Reason Reason
	// Offset is the rune index of the offending group close, when relevant.
	Offset int
}

func (v Verdict) String() string {
	if v.Safe {
		return "safe"
	}
	if v.Reason == ReasonNestedQuantifier {
		return fmt.Sprintf("unsafe: %s at %d", v.Reason, v.Offset)
	}
	return "unsafe: " + string(v.Reason)
}

// Analyzer checks patterns. The zero value uses DefaultMaxLength.
type Analyzer struct {
	MaxLength int
}

// New returns an analyzer with the given maximum length. Non-positive values
// select DefaultMaxLength.
func New(maxLength int) *Analyzer {
	return &Analyzer{MaxLength: maxLength}
}

// two .* or .+ spans with anything in between
var multiWildcard = regexp.MustCompile(`\.[*+].*\.[*+]`)

type frame struct {
	quantified bool
}

// Check inspects pattern and reports whether it is safe to compile.
func (a *Analyzer) Check(pattern string) Verdict {
	limit := a.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}

	src := []rune(pattern)
	if len(src) > limit {
		return Verdict{Reason: ReasonTooLong}
	}

	var (
		stack   []frame
		inClass bool
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\\' {
			i++
			continue
		}
		if inClass {
			if c == ']' {
				inClass = false
			}
			continue
		}

		switch c {
		case '[':
			inClass = true
		case '(':
			stack = append(stack, frame{})
			// (?:, (?i), (?<name> are group syntax, not a quantifier
			if i+1 < len(src) && src[i+1] == '?' {
				i++
			}
		case ')':
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			j := i + 1
			for j < len(src) && unicode.IsSpace(src[j]) {
				j++
			}
			followed := j < len(src) && isQuantifier(src[j])
			if top.quantified && followed {
				return Verdict{Reason: ReasonNestedQuantifier, Offset: i}
			}
			if len(stack) > 0 && (top.quantified || followed) {
				stack[len(stack)-1].quantified = true
			}
		default:
			if isQuantifier(c) && len(stack) > 0 {
				stack[len(stack)-1].quantified = true
			}
		}
	}

	if multiWildcard.MatchString(pattern) {
		return Verdict{Reason: ReasonMultipleWildcards}
	}
	return Verdict{Safe: true}
}

// Safe is shorthand for Check(pattern).Safe.
func (a *Analyzer) Safe(pattern string) bool {
	return a.Check(pattern).Safe
}

func isQuantifier(r rune) bool {
	switch r {
	case '*', '+', '?', '{':
		return true
	}
	return false
}
