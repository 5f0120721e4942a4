package ast

// ConditionKind names a detection variant.
type ConditionKind string

const (
	KindKeyword       ConditionKind = "keyword"
	KindPattern       ConditionKind = "pattern"
	KindThreshold     ConditionKind = "threshold"
	KindRequiredField ConditionKind = "required_field"
	KindStructure     ConditionKind = "structure"
	KindPredicate     ConditionKind = "predicate"
	KindSimilarity    ConditionKind = "similarity"
	KindAll           ConditionKind = "all"
	KindAny           ConditionKind = "any"
)

// ConditionKinds lists every supported condition kind.
func ConditionKinds() []ConditionKind {
	return []ConditionKind{
		KindKeyword, KindPattern, KindThreshold, KindRequiredField,
		KindStructure, KindPredicate, KindSimilarity, KindAll, KindAny,
	}
}

// Condition is the detection clause of a rule. The set of implementations
// is closed to this package.
type Condition interface {
	Kind() ConditionKind
	isCondition()
}

// KeywordMatch selects how a keyword list is combined.
type KeywordMatch string

const (
	MatchAny  KeywordMatch = "any"  // violation when at least one keyword occurs
	MatchAll  KeywordMatch = "all"  // violation when every keyword occurs
	MatchNone KeywordMatch = "none" // violation when no keyword occurs
)

// KeywordCondition matches phrases case-insensitively with whitespace collapsed.
type KeywordCondition struct {
	Keywords []string
	Match    KeywordMatch
}

// PatternMode selects whether a pattern forbids or requires content.
type PatternMode string

const (
	PatternForbid  PatternMode = "forbid"
	PatternRequire PatternMode = "require"
)

// PatternCondition matches an RE2 regular expression against the payload text.
type PatternCondition struct {
	Pattern string
	Mode    PatternMode
}

// Comparator is a numeric or chronological comparison.
type Comparator string

const (
	CompareGT  Comparator = "gt"
	CompareGTE Comparator = "gte"
	CompareLT  Comparator = "lt"
	CompareLTE Comparator = "lte"
	CompareEQ  Comparator = "eq"
	CompareNE  Comparator = "ne"
)

// ValueKind selects how a threshold field is interpreted.
type ValueKind string

const (
	ValueNumber ValueKind = "number"
	ValueDate   ValueKind = "date"
)

// ThresholdCondition compares a field against a bound. The condition matches
// (is a violation) when "field <comparator> threshold" holds.
type ThresholdCondition struct {
	Field      string
	Comparator Comparator
	Threshold  string
	ValueKind  ValueKind
	Locale     string
	Required   bool
}

// RequiredFieldCondition is violated when any listed field is absent or empty.
type RequiredFieldCondition struct {
	Fields []string
}

// StructureKind is the expected shape of a field.
type StructureKind string

const (
	ShapeString StructureKind = "string"
	ShapeNumber StructureKind = "number"
	ShapeBool   StructureKind = "bool"
	ShapeList   StructureKind = "list"
	ShapeMap    StructureKind = "map"
)

// StructureCondition is violated when a field has the wrong shape or exceeds
// its size limits. Zero limits are not enforced.
type StructureCondition struct {
	Field     string
	Expect    StructureKind
	MaxLength int
	MaxItems  int
	Required  bool
}

// PredicateCondition delegates to a named predicate registered with the
// engine or declared in the document's predicates section.
type PredicateCondition struct {
	PredicateID string
	Args        map[string]any
}

// DefaultSimilarity is the Jaccard score at which a similarity condition
// matches when the document sets no threshold.
const DefaultSimilarity = 0.8

// SimilarityCondition matches text whose word-set Jaccard similarity to any
// reference text reaches Threshold.
type SimilarityCondition struct {
	References []string
	Threshold  float64
}

// CompositeCondition combines nested conditions. With KindAll it matches
// when every condition matches, with KindAny when at least one does.
type CompositeCondition struct {
	Op         ConditionKind
	Conditions []Condition
}

func (*KeywordCondition) Kind() ConditionKind       { return KindKeyword }
func (*PatternCondition) Kind() ConditionKind       { return KindPattern }
func (*ThresholdCondition) Kind() ConditionKind     { return KindThreshold }
func (*RequiredFieldCondition) Kind() ConditionKind { return KindRequiredField }
func (*StructureCondition) Kind() ConditionKind     { return KindStructure }
func (*PredicateCondition) Kind() ConditionKind     { return KindPredicate }
func (*SimilarityCondition) Kind() ConditionKind    { return KindSimilarity }
func (c *CompositeCondition) Kind() ConditionKind   { return c.Op }

func (*KeywordCondition) isCondition()       {}
func (*PatternCondition) isCondition()       {}
func (*ThresholdCondition) isCondition()     {}
func (*RequiredFieldCondition) isCondition() {}
func (*StructureCondition) isCondition()     {}
func (*PredicateCondition) isCondition()     {}
func (*SimilarityCondition) isCondition()    {}
func (*CompositeCondition) isCondition()     {}
