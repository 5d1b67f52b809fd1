package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/keshon/warden/internal/regexsafe"
)

// s/<pattern>/<replacement>/<flags>, with \/ allowed inside the first two parts
var rewriteGrammar = regexp.MustCompile(`^s/((?:\\.|[^/])*)/((?:\\.|[^/])*)/([dgimsuvy]*)$`)

// placeholder matches {args} and {N} positional slots.
var placeholder = regexp.MustCompile(`\{(args|\d+)\}`)

// backref matches \N group references in a replacement.
var backref = regexp.MustCompile(`\\(\d+)`)

type rewrite struct {
	pattern     string
	replacement string
	global      bool
	options     regexp2.RegexOptions
}

// isRewrite reports whether tmpl uses the s/…/…/ form.
func isRewrite(tmpl string) bool {
	return strings.HasPrefix(tmpl, "s/")
}

// parseRewrite splits a rewrite template. ok is false when the text does not
// follow the grammar.
func parseRewrite(tmpl string) (rw rewrite, ok bool) {
	m := rewriteGrammar.FindStringSubmatch(tmpl)
	if m == nil {
		return rw, false
	}
	rw.pattern = strings.ReplaceAll(m[1], `\/`, "/")
	rw.replacement = backref.ReplaceAllString(strings.ReplaceAll(m[2], `\/`, "/"), "$${$1}")
	for _, f := range m[3] {
		switch f {
		case 'g':
			rw.global = true
		case 'i':
			rw.options |= regexp2.IgnoreCase
		case 'm':
			rw.options |= regexp2.Multiline
		case 's':
			rw.options |= regexp2.Singleline
		}
	}
	return rw, true
}

// applyRewrite runs one substitution over input. Any failure leaves the
// caller to fall back to the untouched arguments.
func applyRewrite(rw rewrite, input string, analyzer *regexsafe.Analyzer, timeout time.Duration) (string, error) {
	if v := analyzer.Check(rw.pattern); !v.Safe {
		return "", &UnsafePatternError{Pattern: rw.pattern, Verdict: v}
	}
	re, err := regexp2.Compile(rw.pattern, rw.options)
	if err != nil {
		return "", err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	count := 1
	if rw.global {
		count = -1
	}
	return re.Replace(input, rw.replacement, -1, count)
}

// interpolate fills {args} and {N} in a single pass, so placeholder-looking
// text inside the arguments is left alone.
func interpolate(tmpl string, args []string) string {
	joined := strings.Join(args, " ")
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if key == "args" {
			return joined
		}
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > len(args) {
			return ""
		}
		return args[n-1]
	})
}

// ErrMalformedRewrite is returned by CheckTemplate for an s/ template that
// does not follow the s/pattern/replacement/flags grammar.
var ErrMalformedRewrite = errors.New("resolver: malformed rewrite template")

// CheckTemplate validates an alias template before it is stored. It reports
// whether tmpl is a rewrite; positional templates are always accepted.
func CheckTemplate(tmpl string, analyzer *regexsafe.Analyzer) (bool, error) {
	if !isRewrite(tmpl) {
		return false, nil
	}
	rw, ok := parseRewrite(tmpl)
	if !ok {
		return true, ErrMalformedRewrite
	}
	if analyzer == nil {
		analyzer = regexsafe.New(regexsafe.DefaultMaxLength)
	}
	if v := analyzer.Check(rw.pattern); !v.Safe {
		return true, &UnsafePatternError{Pattern: rw.pattern, Verdict: v}
	}
	if _, err := regexp2.Compile(rw.pattern, rw.options); err != nil {
		return true, fmt.Errorf("resolver: compile rewrite pattern: %w", err)
	}
	return true, nil
}

// UnsafePatternError reports a rewrite pattern rejected by the safety analyzer.
type UnsafePatternError struct {
	Pattern string
	Verdict regexsafe.Verdict
}

func (e *UnsafePatternError) Error() string {
	return "unsafe rewrite pattern " + strconv.Quote(e.Pattern) + ": " + string(e.Verdict.Reason)
}
