package domain

// Direction names which corpus is checked against which.
type Direction string

// Available check directions.
const (
	// DirectionFeatureToLaw checks new features against stored law.
	DirectionFeatureToLaw Direction = "feature_to_law"

	// DirectionLawToFeature checks a new law against stored features.
	DirectionLawToFeature Direction = "law_to_feature"
)

// IsValid returns true if the direction is recognised.
func (d Direction) IsValid() bool {
	return d == DirectionFeatureToLaw || d == DirectionLawToFeature
}

// Evidence returns the corpus queried for evidence in this direction.
func (d Direction) Evidence() Corpus {
	if d == DirectionLawToFeature {
		return CorpusFeature
	}
	return CorpusLaw
}

// SchemaField is one required string property of a response item.
type SchemaField struct {
	Name        string
	Description string
}

// ResponseSchema is the fixed shape of a structured model response:
// an object holding one array of items, each item an object whose
// fields are all required strings.
type ResponseSchema struct {
	// Title names the schema for providers that require one.
	Title string

	// ItemsKey is the top-level property holding the item array.
	ItemsKey string

	// Description documents the item array.
	Description string

	// Fields enumerates the required item properties, in order.
	Fields []SchemaField
}

// FieldNames returns the item property names in schema order.
func (s ResponseSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// JSONSchema renders the schema as a JSON Schema document.
func (s ResponseSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Name] = map[string]any{
			"type":        "string",
			"description": f.Description,
		}
	}

	return map[string]any{
		"title": s.Title,
		"type":  "object",
		"properties": map[string]any{
			s.ItemsKey: map[string]any{
				"type":        "array",
				"description": s.Description,
				"items": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   s.FieldNames(),
				},
			},
		},
		"required": []string{s.ItemsKey},
	}
}

// Violation is one validated response item. Fields holds every schema
// property except reasoning, which is split out.
type Violation struct {
	Fields    map[string]string `json:"fields"`
	Reasoning string            `json:"reasoning"`
}

// Get returns a field value or NotAvailable.
func (v Violation) Get(name string) string {
	if val := v.Fields[name]; val != "" {
		return val
	}
	return NotAvailable
}

// ViolationResult is a schema-valid violation-detection answer.
// An empty Items list means no violation was found.
type ViolationResult struct {
	Direction Direction   `json:"direction"`
	ItemsKey  string      `json:"items_key"`
	Items     []Violation `json:"items"`
}

// Empty reports whether no violation was found.
func (r *ViolationResult) Empty() bool {
	return r == nil || len(r.Items) == 0
}

// UpdateState is the resolved state of a law update search.
type UpdateState string

// Resolved update states.
const (
	UpdateMatched UpdateState = "matched"
	UpdateNoMatch UpdateState = "no_match"
)

// UpdateDecision is the terminal state of the law update state machine.
type UpdateDecision struct {
	State   UpdateState
	MatchID string
}

// Matched returns a decision naming an existing law.
func Matched(id string) UpdateDecision {
	return UpdateDecision{State: UpdateMatched, MatchID: id}
}

// NoMatch returns a decision to insert as new.
func NoMatch() UpdateDecision {
	return UpdateDecision{State: UpdateNoMatch}
}

// UpdateOutcome reports what an update did to the law store.
type UpdateOutcome struct {
	Decision   UpdateDecision
	Candidates int
	Replaced   bool
	DocumentID string
	StoreSize  int
}
