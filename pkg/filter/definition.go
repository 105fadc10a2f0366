package filter

import "github.com/aretw0/strata/pkg/graph"

// ItemType selects which items of a graph a filter tests.
type ItemType string

const (
	Nodes ItemType = "nodes"
	Edges ItemType = "edges"
)

// Kind names a filter variant. It is the "type" discriminator on the wire.
type Kind string

const (
	KindRange       Kind = "range"
	KindTerms       Kind = "terms"
	KindScript      Kind = "script"
	KindTopological Kind = "topological"
)

// Definition is one filter of the stack. The set of implementations is closed
// to this package: RangeFilter, TermsFilter, ScriptFilter, TopologicalFilter.
type Definition interface {
	Kind() Kind
	definition()
}

// RangeFilter keeps items whose numeric field lies within [Min, Max].
// A nil bound is unbounded.
type RangeFilter struct {
	ItemType    ItemType `json:"itemType" mapstructure:"itemType" validate:"required,oneof=nodes edges"`
	Field       string   `json:"field" mapstructure:"field" validate:"required"`
	Min         *float64 `json:"min,omitempty" mapstructure:"min"`
	Max         *float64 `json:"max,omitempty" mapstructure:"max"`
	KeepMissing bool     `json:"keepMissing,omitempty" mapstructure:"keepMissing"`
}

// TermsFilter keeps items whose stringified field is one of Terms.
// An empty set keeps everything.
type TermsFilter struct {
	ItemType    ItemType `json:"itemType" mapstructure:"itemType" validate:"required,oneof=nodes edges"`
	Field       string   `json:"field" mapstructure:"field" validate:"required"`
	Terms       []string `json:"terms,omitempty" mapstructure:"terms"`
	KeepMissing bool     `json:"keepMissing,omitempty" mapstructure:"keepMissing"`
}

// Predicate is a native script: it receives the item key, its attributes and
// the unfiltered graph. Returning an error aborts the stage.
type Predicate func(id string, attrs graph.Attributes, full *graph.Graph) (bool, error)

// ScriptFilter keeps items for which a script returns true. Script is an
// expression source; Predicate, when set, takes precedence and cannot be
// serialized.
type ScriptFilter struct {
	ItemType  ItemType  `json:"itemType" mapstructure:"itemType" validate:"required,oneof=nodes edges"`
	Script    string    `json:"script,omitempty" mapstructure:"script"`
	Predicate Predicate `json:"-" mapstructure:"-"`
}

// TopologicalFilter applies a named structural transform.
type TopologicalFilter struct {
	Method    string         `json:"method" mapstructure:"method" validate:"required"`
	Arguments map[string]any `json:"arguments,omitempty" mapstructure:"arguments"`
}

func (RangeFilter) Kind() Kind       { return KindRange }
func (TermsFilter) Kind() Kind       { return KindTerms }
func (ScriptFilter) Kind() Kind      { return KindScript }
func (TopologicalFilter) Kind() Kind { return KindTopological }

func (RangeFilter) definition()       {}
func (TermsFilter) definition()       {}
func (ScriptFilter) definition()      {}
func (TopologicalFilter) definition() {}

// Float returns a pointer to v, for RangeFilter bounds.
func Float(v float64) *float64 {
	return &v
}
