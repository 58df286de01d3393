package triprule

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tturner/vts/internal/vtserrors"
)

// rule is a named, optionally-disabled parsed expression.
type rule struct {
	name       string
	expression string
	ast        node
	enabled    bool
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Triggered   bool
	RuleName    string
	Message     string
	TimestampUs int64
}

// Evaluator holds the current rule set and data point values, evaluating
// rules in a single non-reentrant lock. The first enabled rule (in
// alphabetical name order) that evaluates true wins; ties never occur since
// evaluation stops at the first trigger.
type Evaluator struct {
	mu     sync.Mutex
	rules  map[string]*rule
	points map[string]DataPoint
}

// NewEvaluator returns an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		rules:  make(map[string]*rule),
		points: make(map[string]DataPoint),
	}
}

// AddRule parses expression and stores it under name, replacing any existing
// rule with the same name. The rule starts enabled.
func (e *Evaluator) AddRule(name, expression string) error {
	ast, err := parseExpression(expression)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[name] = &rule{name: name, expression: expression, ast: ast, enabled: true}
	return nil
}

// RemoveRule deletes a rule if present.
func (e *Evaluator) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, name)
}

// SetEnabled toggles a rule's active flag.
func (e *Evaluator) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[name]
	if !ok {
		return fmt.Errorf("rule %q: %w", name, vtserrors.ErrConfigInvalid)
	}
	r.enabled = enabled
	return nil
}

// ClearRules removes every rule.
func (e *Evaluator) ClearRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[string]*rule)
}

// UpdateBool sets a boolean-typed data point.
func (e *Evaluator) UpdateBool(path string, value bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.points[path] = DataPoint{Type: TypeBool, Bool: value}
}

// UpdateInt sets an integer-typed data point.
func (e *Evaluator) UpdateInt(path string, value int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.points[path] = DataPoint{Type: TypeInt, Int: value}
}

// UpdateFloat sets a float-typed data point.
func (e *Evaluator) UpdateFloat(path string, value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.points[path] = DataPoint{Type: TypeFloat, Float: value}
}

// Evaluate checks every enabled rule in alphabetical name order and returns
// the first one that triggers. timestampUs is caller-supplied so the
// evaluator itself never reads the clock (kept deterministic for tests).
func (e *Evaluator) Evaluate(timestampUs int64) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.rules))
	for name := range e.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := e.rules[name]
		if !r.enabled || r.ast == nil {
			continue
		}
		if r.ast.evaluate(e.points) {
			return Result{
				Triggered:   true,
				RuleName:    r.name,
				Message:     fmt.Sprintf("trip rule triggered: %s", r.expression),
				TimestampUs: timestampUs,
			}
		}
	}
	return Result{Triggered: false, Message: "no trip rules triggered", TimestampUs: timestampUs}
}

// RuleNames returns every configured rule name, alphabetically.
func (e *Evaluator) RuleNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.rules))
	for name := range e.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expression returns a rule's source expression.
func (e *Evaluator) Expression(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[name]
	if !ok {
		return "", false
	}
	return r.expression, true
}

// Enabled reports whether a rule is active.
func (e *Evaluator) Enabled(name string) (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[name]
	if !ok {
		return false, false
	}
	return r.enabled, true
}
