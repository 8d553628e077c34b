package policy

import (
	"errors"
	"fmt"
	"sort"

	"violation-service/internal/domain/violation"
)

var ErrInvalidPolicy = errors.New("invalid policy")

// Rule is the per-class threshold and escalation policy.
type Rule struct {
	Class             violation.Class `json:"class"`
	MinConfidence     float64         `json:"min_confidence"`
	AlwaysViolation   bool            `json:"always_violation"`
	RequireMotorcycle bool            `json:"require_motorcycle"`
}

// Options is the injectable form of the table. Maps are keyed by class name
// ("mobile_phone") and violation type key ("phone_usage"); missing entries
// fall back to the defaults.
type Options struct {
	ClassIDs                     map[string]int
	MinConfidenceByClass         map[string]float64
	FineAmountByViolationType    map[string]float64
	RequireMotorcycleForNoHelmet bool
}

var (
	DefaultClassIDs = map[string]int{
		"helmet":        0,
		"no_helmet":     1,
		"mobile_phone":  2,
		"triple_riding": 3,
		"license_plate": 4,
		"motorcycle":    5,
	}

	DefaultMinConfidence = map[string]float64{
		"helmet":        0.50,
		"no_helmet":     0.50,
		"mobile_phone":  0.35,
		"triple_riding": 0.50,
		"license_plate": 0.40,
		"motorcycle":    0.40,
	}

	DefaultFines = map[string]float64{
		"no_helmet":     500,
		"phone_usage":   1000,
		"triple_riding": 1500,
	}
)

// Table is read-only after construction and safe for concurrent use.
type Table struct {
	classByID map[int]violation.Class
	rules     map[violation.Class]Rule
	fines     map[violation.Type]float64
}

func Default() *Table {
	t, err := New(Options{})
	if err != nil {
		panic(err)
	}
	return t
}

func New(opts Options) (*Table, error) {
	t := &Table{
		classByID: make(map[int]violation.Class, len(violation.Classes)),
		rules:     make(map[violation.Class]Rule, len(violation.Classes)),
		fines:     make(map[violation.Type]float64, len(violation.Types)),
	}

	ids := merge(DefaultClassIDs, opts.ClassIDs)
	for _, name := range sortedKeys(ids) {
		class, ok := violation.ParseClass(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown class %q in class ids", ErrInvalidPolicy, name)
		}
		id := ids[name]
		if id < 0 {
			return nil, fmt.Errorf("%w: negative class id %d for %s", ErrInvalidPolicy, id, name)
		}
		if other, dup := t.classByID[id]; dup {
			return nil, fmt.Errorf("%w: class id %d assigned to both %s and %s", ErrInvalidPolicy, id, other, class)
		}
		t.classByID[id] = class
	}

	thresholds := merge(DefaultMinConfidence, opts.MinConfidenceByClass)
	for _, name := range sortedKeys(thresholds) {
		class, ok := violation.ParseClass(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown class %q in confidence thresholds", ErrInvalidPolicy, name)
		}
		threshold := thresholds[name]
		if threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("%w: confidence threshold %.2f for %s outside [0,1]", ErrInvalidPolicy, threshold, name)
		}
		t.rules[class] = Rule{
			Class:           class,
			MinConfidence:   threshold,
			AlwaysViolation: class == violation.ClassMobilePhone || class == violation.ClassTripleRiding,
		}
	}
	if r, ok := t.rules[violation.ClassNoHelmet]; ok {
		r.RequireMotorcycle = opts.RequireMotorcycleForNoHelmet
		t.rules[violation.ClassNoHelmet] = r
	}

	fines := merge(DefaultFines, opts.FineAmountByViolationType)
	for _, key := range sortedKeys(fines) {
		typ, ok := violation.ParseType(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown violation type %q in fines", ErrInvalidPolicy, key)
		}
		if fines[key] < 0 {
			return nil, fmt.Errorf("%w: negative fine for %s", ErrInvalidPolicy, typ)
		}
		t.fines[typ] = fines[key]
	}

	return t, nil
}

// ClassOf maps a detector class id to a class.
func (t *Table) ClassOf(classID int) (violation.Class, bool) {
	c, ok := t.classByID[classID]
	return c, ok
}

func (t *Table) Rule(c violation.Class) Rule {
	return t.rules[c]
}

// Accepts reports whether confidence meets the class threshold. The bound is inclusive.
func (t *Table) Accepts(c violation.Class, confidence float64) bool {
	return confidence >= t.rules[c].MinConfidence
}

func (t *Table) Fine(typ violation.Type) float64 {
	return t.fines[typ]
}

// Rules returns every rule in class order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, c := range violation.Classes {
		out = append(out, t.rules[c])
	}
	return out
}

func merge[V any](defaults, overrides map[string]V) map[string]V {
	out := make(map[string]V, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
