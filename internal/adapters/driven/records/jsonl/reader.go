// Package jsonl decodes newline-delimited JSON record files into typed
// domain records.
//
// Every non-blank line must be one JSON object. A line that fails to decode,
// or lacks a required field, aborts the read with a
// *domain.MalformedRecordError naming the source and line number.
//
// Law and feature records missing an "id" get a random UUID, and records
// missing "reference_file" get the source name. A law line may also hold a
// whole parsed law document (law-level fields plus a "provisions" array),
// which is flattened into one record per provision.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// maxLineBytes bounds a single record line. Law provisions can be long.
const maxLineBytes = 16 << 20

// Reader decodes record streams.
type Reader struct {
	validate *validator.Validate
	newID    func() string
}

// NewReader creates a reader that stamps UUIDv4 ids.
func NewReader() *Reader {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Reader{
		validate: v,
		newID:    func() string { return uuid.NewString() },
	}
}

// lawLine is one flattened provision.
type lawLine struct {
	ID             string `json:"id"`
	ProvisionTitle string `json:"provision_title" validate:"required"`
	ProvisionBody  string `json:"provision_body" validate:"required"`
	ProvisionCode  string `json:"provision_code"`
	LawCode        string `json:"law_code"`
	Country        string `json:"country"`
	Region         string `json:"region"`
	RelevantLabels string `json:"relevant_labels"`
	ReferenceFile  string `json:"reference_file"`
}

// provisionLine is a provision nested in a law document.
type provisionLine struct {
	ProvisionTitle string `json:"provision_title" validate:"required"`
	ProvisionBody  string `json:"provision_body" validate:"required"`
	ProvisionCode  string `json:"provision_code"`
}

// LawDocument is a parsed legal document: law-level fields shared by all of
// its provisions.
type LawDocument struct {
	Country        string          `json:"country"`
	Region         string          `json:"region"`
	RelevantLabels string          `json:"relevant_labels"`
	LawCode        string          `json:"law_code"`
	ReferenceFile  string          `json:"reference_file"`
	Provisions     []provisionLine `json:"provisions" validate:"required,min=1,dive"`
}

type featureLine struct {
	ID                 string `json:"id"`
	FeatureID          string `json:"feature_id"`
	FeatureTitle       string `json:"feature_title" validate:"required"`
	FeatureDescription string `json:"feature_description" validate:"required"`
	FeatureType        string `json:"feature_type"`
	ProjectName        string `json:"project_name"`
	ProjectID          string `json:"project_id"`
	ReferenceFile      string `json:"reference_file"`
}

type termLine struct {
	VariableName        string `json:"variable_name" validate:"required"`
	VariableDescription string `json:"variable_description"`
}

type complianceLine struct {
	ComplianceTitle       string `json:"compliance_title" validate:"required"`
	ComplianceDescription string `json:"compliance_description"`
}

// ReadLaws decodes law records. source names the stream in errors and is
// the default reference_file.
func (r *Reader) ReadLaws(src io.Reader, source string) ([]domain.LawRecord, error) {
	var laws []domain.LawRecord
	err := r.eachLine(src, source, func(raw []byte) error {
		var probe struct {
			Provisions json.RawMessage `json:"provisions"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return err
		}

		if probe.Provisions != nil {
			var doc LawDocument
			if err := r.decode(raw, &doc); err != nil {
				return err
			}
			laws = append(laws, FlattenLawDocument(doc, source, r.newID)...)
			return nil
		}

		var line lawLine
		if err := r.decode(raw, &line); err != nil {
			return err
		}
		laws = append(laws, domain.LawRecord{
			ID:             orDefault(line.ID, r.newID),
			ProvisionTitle: line.ProvisionTitle,
			ProvisionBody:  line.ProvisionBody,
			ProvisionCode:  line.ProvisionCode,
			LawCode:        line.LawCode,
			Country:        line.Country,
			Region:         line.Region,
			RelevantLabels: line.RelevantLabels,
			ReferenceFile:  orValue(line.ReferenceFile, source),
		})
		return nil
	})
	return laws, err
}

// FlattenLawDocument expands a law document into one record per provision.
// Each record carries the law-level fields, a fresh id, and the document's
// reference_file or source.
func FlattenLawDocument(doc LawDocument, source string, newID func() string) []domain.LawRecord {
	ref := orValue(doc.ReferenceFile, source)
	out := make([]domain.LawRecord, 0, len(doc.Provisions))
	for _, p := range doc.Provisions {
		out = append(out, domain.LawRecord{
			ID:             newID(),
			ProvisionTitle: p.ProvisionTitle,
			ProvisionBody:  p.ProvisionBody,
			ProvisionCode:  p.ProvisionCode,
			LawCode:        doc.LawCode,
			Country:        doc.Country,
			Region:         doc.Region,
			RelevantLabels: doc.RelevantLabels,
			ReferenceFile:  ref,
		})
	}
	return out
}

// ReadFeatures decodes feature records.
func (r *Reader) ReadFeatures(src io.Reader, source string) ([]domain.FeatureRecord, error) {
	var features []domain.FeatureRecord
	err := r.eachLine(src, source, func(raw []byte) error {
		var line featureLine
		if err := r.decode(raw, &line); err != nil {
			return err
		}
		features = append(features, domain.FeatureRecord{
			ID:                 orDefault(line.ID, r.newID),
			FeatureID:          line.FeatureID,
			FeatureTitle:       line.FeatureTitle,
			FeatureDescription: line.FeatureDescription,
			FeatureType:        line.FeatureType,
			ProjectName:        line.ProjectName,
			ProjectID:          line.ProjectID,
			ReferenceFile:      orValue(line.ReferenceFile, source),
		})
		return nil
	})
	return features, err
}

// ReadTerms decodes data dictionary entries.
func (r *Reader) ReadTerms(src io.Reader, source string) ([]domain.TermRecord, error) {
	var terms []domain.TermRecord
	err := r.eachLine(src, source, func(raw []byte) error {
		var line termLine
		if err := r.decode(raw, &line); err != nil {
			return err
		}
		terms = append(terms, domain.TermRecord(line))
		return nil
	})
	return terms, err
}

// ReadCompliance decodes already conformed compliance rules.
func (r *Reader) ReadCompliance(src io.Reader, source string) ([]domain.ComplianceRecord, error) {
	var rules []domain.ComplianceRecord
	err := r.eachLine(src, source, func(raw []byte) error {
		var line complianceLine
		if err := r.decode(raw, &line); err != nil {
			return err
		}
		rules = append(rules, domain.ComplianceRecord(line))
		return nil
	})
	return rules, err
}

// ReadLawsFile decodes a law file. The file's base name is the source.
func (r *Reader) ReadLawsFile(path string) ([]domain.LawRecord, error) {
	var laws []domain.LawRecord
	err := withFile(path, func(f io.Reader, source string) (err error) {
		laws, err = r.ReadLaws(f, source)
		return err
	})
	return laws, err
}

// ReadProject decodes a project's features plus its optional terms and
// compliance files. Empty paths are skipped.
func (r *Reader) ReadProject(featuresPath, termsPath, compliancePath string) (domain.ProjectBundle, error) {
	var bundle domain.ProjectBundle

	err := withFile(featuresPath, func(f io.Reader, source string) (err error) {
		bundle.Features, err = r.ReadFeatures(f, source)
		return err
	})
	if err != nil {
		return bundle, err
	}

	if termsPath != "" {
		err = withFile(termsPath, func(f io.Reader, source string) (err error) {
			bundle.Terms, err = r.ReadTerms(f, source)
			return err
		})
		if err != nil {
			return bundle, err
		}
	}

	if compliancePath != "" {
		err = withFile(compliancePath, func(f io.Reader, source string) (err error) {
			bundle.Compliance, err = r.ReadCompliance(f, source)
			return err
		})
		if err != nil {
			return bundle, err
		}
	}

	return bundle, nil
}

// eachLine calls fn for every non-blank line, wrapping failures with the
// line number.
func (r *Reader) eachLine(src io.Reader, source string, fn func(raw []byte) error) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := fn(raw); err != nil {
			return &domain.MalformedRecordError{Source: source, Line: line, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return &domain.MalformedRecordError{Source: source, Line: line + 1, Err: err}
	}
	return nil
}

// decode unmarshals one line and checks its validate tags.
func (r *Reader) decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	if err := r.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs)
		}
		return err
	}
	return nil
}

func describe(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Drop the leading struct name: "lawLine.provision_title" -> "provision_title".
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}

		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("missing required field %s", path))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s entries", path, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s failed %s", path, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func withFile(path string, fn func(f io.Reader, source string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	defer f.Close()
	return fn(f, filepath.Base(path))
}

func orDefault(v string, gen func() string) string {
	if v != "" {
		return v
	}
	return gen()
}

func orValue(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
