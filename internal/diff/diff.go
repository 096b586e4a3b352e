// Package diff compares assertion values and reliability metrics between
// revisions. Everything here is pure; callers decide what a change means.
package diff

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/source"
)

// Op classifies one change.
type Op int

const (
	// OpNone indicates the values are equal.
	OpNone Op = iota
	// OpModified indicates a value changed in place.
	OpModified
	// OpAdded indicates a field that only the new value has.
	OpAdded
	// OpRemoved indicates a field that only the old value has.
	OpRemoved
	// OpKindChanged indicates the value switched type entirely.
	OpKindChanged
)

func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpModified:
		return "modified"
	case OpAdded:
		return "added"
	case OpRemoved:
		return "removed"
	case OpKindChanged:
		return "kind_changed"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Change describes the difference between two assertion values. For
// struct values the top-level change aggregates per-field Children.
type Change struct {
	// Path is the field path for nested changes, empty at the top level.
	Path   string
	Op     Op
	Before *assertion.Value
	After  *assertion.Value
	// Delta and PercentChange are set for number-kind modifications.
	// PercentChange is NaN when the old value was zero.
	Delta         float64
	PercentChange float64
	Children      []Change
}

// Changed reports whether the comparison found any difference.
func (c Change) Changed() bool {
	return c.Op != OpNone || len(c.Children) > 0
}

// Compare diffs two assertion values.
func Compare(oldValue, newValue assertion.Value) Change {
	return compare("", oldValue, newValue)
}

func compare(path string, oldValue, newValue assertion.Value) Change {
	c := Change{Path: path}

	if oldValue.Kind != newValue.Kind {
		c.Op = OpKindChanged
		c.Before = &oldValue
		c.After = &newValue
		return c
	}

	switch oldValue.Kind {
	case assertion.ValueKindNumber:
		if oldValue.Number == newValue.Number && oldValue.Unit == newValue.Unit {
			return c
		}
		c.Op = OpModified
		c.Before = &oldValue
		c.After = &newValue
		c.Delta = newValue.Number - oldValue.Number
		if oldValue.Number == 0 {
			c.PercentChange = math.NaN()
		} else {
			c.PercentChange = c.Delta / math.Abs(oldValue.Number)
		}
	case assertion.ValueKindText:
		if oldValue.Text == newValue.Text {
			return c
		}
		c.Op = OpModified
		c.Before = &oldValue
		c.After = &newValue
	case assertion.ValueKindStruct:
		c.Children = compareFields(path, oldValue.Fields, newValue.Fields)
	}
	return c
}

func compareFields(path string, oldFields, newFields map[string]assertion.Value) []Change {
	keys := make(map[string]bool, len(oldFields)+len(newFields))
	for k := range oldFields {
		keys[k] = true
	}
	for k := range newFields {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var children []Change
	for _, key := range sorted {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		oldChild, inOld := oldFields[key]
		newChild, inNew := newFields[key]
		switch {
		case inOld && !inNew:
			children = append(children, Change{Path: childPath, Op: OpRemoved, Before: &oldChild})
		case !inOld && inNew:
			children = append(children, Change{Path: childPath, Op: OpAdded, After: &newChild})
		default:
			child := compare(childPath, oldChild, newChild)
			if child.Changed() {
				children = append(children, child)
			}
		}
	}
	return children
}

// Exceeds reports whether a change is large enough to warrant
// re-validation. Numeric changes compare |PercentChange| against the
// threshold; categorical changes (kind switches, text edits, added or
// removed fields) always exceed. Struct changes exceed when any nested
// change does.
func Exceeds(c Change, threshold float64) bool {
	switch c.Op {
	case OpNone:
	case OpModified:
		if c.Before != nil && c.Before.Kind == assertion.ValueKindNumber {
			if math.IsNaN(c.PercentChange) {
				return true
			}
			return math.Abs(c.PercentChange) > threshold
		}
		return true
	default:
		return true
	}
	for _, child := range c.Children {
		if Exceeds(child, threshold) {
			return true
		}
	}
	return false
}

// MetricsDelta holds per-component reliability score movements.
type MetricsDelta struct {
	Accuracy       float64
	Consistency    float64
	Freshness      float64
	Verification   float64
	Authority      float64
	CrossReference float64
	Overall        float64
}

// CompareMetrics returns new minus old for every score component.
func CompareMetrics(oldMetrics, newMetrics source.Metrics) MetricsDelta {
	return MetricsDelta{
		Accuracy:       newMetrics.Accuracy - oldMetrics.Accuracy,
		Consistency:    newMetrics.Consistency - oldMetrics.Consistency,
		Freshness:      newMetrics.Freshness - oldMetrics.Freshness,
		Verification:   newMetrics.Verification - oldMetrics.Verification,
		Authority:      newMetrics.Authority - oldMetrics.Authority,
		CrossReference: newMetrics.CrossReference - oldMetrics.CrossReference,
		Overall:        newMetrics.Overall - oldMetrics.Overall,
	}
}

// Degraded reports whether the overall score dropped by more than the
// given amount.
func (d MetricsDelta) Degraded(by float64) bool {
	return d.Overall < -by
}
