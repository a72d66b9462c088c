package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Corpus identifies one of the two managed document collections.
type Corpus string

// Available corpora.
const (
	CorpusLaw     Corpus = "law"
	CorpusFeature Corpus = "feature"
)

// IsValid returns true if the corpus is recognised.
func (c Corpus) IsValid() bool {
	return c == CorpusLaw || c == CorpusFeature
}

// String returns the string representation.
func (c Corpus) String() string {
	return string(c)
}

// Similarity thresholds and index defaults.
const (
	// RetrievalThreshold is the minimum score for cross-corpus evidence.
	RetrievalThreshold = 0.6

	// ReplaceThreshold is the minimum score for a law to count as a
	// near-duplicate candidate during an update.
	ReplaceThreshold = 0.9

	// DefaultDimension is the vector size of gemini-embedding-001.
	DefaultDimension = 3072
)

// Document is the unit stored in a corpus store: rendered text for
// embedding plus provenance metadata. Metadata must contain FieldID.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// ID returns the semantic identifier held in metadata.
func (d Document) ID() string {
	return d.Metadata[FieldID]
}

// Key returns the full identity of the document (content and every
// metadata pair), suitable as a map key for deduplication.
func (d Document) Key() string {
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(d.Content)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(d.Metadata[k])
	}
	return b.String()
}

// Equal reports whether two documents have the same content and metadata.
func (d Document) Equal(o Document) bool {
	return d.Key() == o.Key()
}

// Clone returns a deep copy, so callers cannot mutate stored metadata.
func (d Document) Clone() Document {
	md := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		md[k] = v
	}
	return Document{Content: d.Content, Metadata: md}
}

// StoredDocument is a document together with its internal store slot.
// The slot is assigned by the store and is distinct from the metadata id.
type StoredDocument struct {
	Slot int64
	Document
}

// ScoredDocument is a query hit. Higher scores mean more similar.
type ScoredDocument struct {
	StoredDocument
	Score float64
}

// LawDocument renders a law record as a storable document. The content is
// the record's canonical JSON line.
func LawDocument(law LawRecord) (Document, error) {
	content, err := json.Marshal(law)
	if err != nil {
		return Document{}, fmt.Errorf("marshal law %s: %w", law.ID, err)
	}

	md := map[string]string{
		FieldID:             law.ID,
		FieldProvisionTitle: law.ProvisionTitle,
		FieldProvisionCode:  law.ProvisionCode,
		FieldLawCode:        law.LawCode,
		FieldCountry:        law.Country,
		FieldRegion:         law.Region,
		FieldRelevantLabels: law.RelevantLabels,
		FieldReferenceFile:  law.ReferenceFile,
	}
	return Document{Content: string(content), Metadata: md}, nil
}

// FeatureDocument renders a feature with its project's data dictionary and
// conformed compliance rules. Empty blocks are omitted.
func FeatureDocument(f FeatureRecord, terms []TermRecord, rules []ComplianceRecord) Document {
	var b strings.Builder
	fmt.Fprintf(&b, "**Project:** %s\n", FieldOrNA(f, FieldProjectName))
	fmt.Fprintf(&b, "**Feature Title:** %s\n", FieldOrNA(f, FieldFeatureTitle))
	fmt.Fprintf(&b, "**Feature Type:** %s\n", FieldOrNA(f, FieldFeatureType))
	fmt.Fprintf(&b, "**Description:**\n%s\n", FieldOrNA(f, FieldFeatureDescription))

	if len(terms) > 0 || len(rules) > 0 {
		b.WriteByte('\n')
	}
	if len(terms) > 0 {
		b.WriteString("--- Project Data Dictionary ---\n")
		for _, t := range terms {
			fmt.Fprintf(&b, "- %s: %s\n", FieldOrNA(t, FieldVariableName), FieldOrNA(t, FieldVariableDesc))
		}
	}
	if len(rules) > 0 {
		b.WriteString("--- Project Compliance Rules ---\n")
		for _, r := range rules {
			fmt.Fprintf(&b, "- %s: %s\n", FieldOrNA(r, FieldComplianceTitle), FieldOrNA(r, FieldComplianceDesc))
		}
	}

	md := map[string]string{
		FieldID:            f.ID,
		FieldFeatureID:     f.FeatureID,
		FieldFeatureTitle:  f.FeatureTitle,
		FieldFeatureType:   f.FeatureType,
		FieldProjectName:   f.ProjectName,
		FieldProjectID:     f.ProjectID,
		FieldReferenceFile: f.ReferenceFile,
	}
	return Document{Content: strings.TrimRight(b.String(), "\n"), Metadata: md}
}
