package store

import (
	"sort"
	"strings"
)

// Trait is a capability a backend implements natively. The generic layer
// skips its own version of a behaviour when the backend declares the trait.
type Trait string

const (
	Ordered                     Trait = "ORDERED"
	IngestAggregation           Trait = "INGEST_AGGREGATION"
	PreAggregationFiltering     Trait = "PRE_AGGREGATION_FILTERING"
	PostAggregationFiltering    Trait = "POST_AGGREGATION_FILTERING"
	PostTransformationFiltering Trait = "POST_TRANSFORMATION_FILTERING"
	Transformation              Trait = "TRANSFORMATION"
	Visibility                  Trait = "VISIBILITY"
	MatchedVertex               Trait = "MATCHED_VERTEX"
	StoreValidation             Trait = "STORE_VALIDATION"
)

// TraitSet is an immutable set of traits.
type TraitSet struct {
	m map[Trait]struct{}
}

// NewTraitSet returns a set holding traits.
func NewTraitSet(traits ...Trait) TraitSet {
	m := make(map[Trait]struct{}, len(traits))
	for _, t := range traits {
		m[t] = struct{}{}
	}
	return TraitSet{m: m}
}

// Has reports whether t is in the set.
func (s TraitSet) Has(t Trait) bool {
	_, ok := s.m[t]
	return ok
}

// Len returns the number of traits.
func (s TraitSet) Len() int {
	return len(s.m)
}

// Slice returns the traits, sorted.
func (s TraitSet) Slice() []Trait {
	out := make([]Trait, 0, len(s.m))
	for t := range s.m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s TraitSet) String() string {
	names := make([]string, 0, len(s.m))
	for _, t := range s.Slice() {
		names = append(names, string(t))
	}
	return "[" + strings.Join(names, ",") + "]"
}
