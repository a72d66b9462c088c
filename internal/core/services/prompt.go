package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// RenderNumbered lists records as "0. {title} - {desc}", one per line.
// Missing fields render as N/A.
func RenderNumbered(records []domain.Record, titleKey, descKey string) string {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = fmt.Sprintf("%d. %s - %s", i, domain.FieldOrNA(r, titleKey), domain.FieldOrNA(r, descKey))
	}
	return strings.Join(lines, "\n")
}

func section(tag, body string) string {
	return "<" + tag + ">\n" + body + "\n</" + tag + ">"
}

// AssembleFeatureRequest renders a feature check request: features, then
// terminology, then already conformed compliance rules.
func AssembleFeatureRequest(features []domain.FeatureRecord, terms []domain.TermRecord, compliance []domain.ComplianceRecord) string {
	return strings.Join([]string{
		section("features", RenderNumbered(domain.FeaturesAsRecords(features), domain.FieldFeatureTitle, domain.FieldFeatureDescription)),
		section("terminology", RenderNumbered(domain.TermsAsRecords(terms), domain.FieldVariableName, domain.FieldVariableDesc)),
		section("compliance_already_conformed", RenderNumbered(domain.ComplianceAsRecords(compliance), domain.FieldComplianceTitle, domain.FieldComplianceDesc)),
	}, "\n")
}

// AssembleLawRequest renders a law check request.
func AssembleLawRequest(laws []domain.LawRecord) string {
	return section("law", RenderNumbered(domain.LawsAsRecords(laws), domain.FieldProvisionTitle, domain.FieldProvisionBody))
}

// RenderContext renders retrieved documents as model context, separated by
// blank lines.
func RenderContext(docs []domain.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		md := domain.Fields(d.Metadata)
		id, ok := md.Field(domain.FieldLawCode)
		if !ok {
			id = domain.FieldOrNA(md, domain.FieldFeatureID)
		}
		parts[i] = fmt.Sprintf("Source: %s\nID: %s\nContent: %s",
			domain.FieldOrNA(md, domain.FieldReferenceFile), id, d.Content)
	}
	return strings.Join(parts, "\n\n")
}
