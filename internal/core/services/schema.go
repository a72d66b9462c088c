package services

import (
	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

// Items keys of the structured responses.
const (
	ItemsProvisions = "provisions"
	ItemsFeatures   = "features"
	ItemsMatches    = "matches"
)

// FeatureToLawSchema is the answer shape for a feature check: the stored
// provisions the features violate.
var FeatureToLawSchema = domain.ResponseSchema{
	Title:       "Answer",
	ItemsKey:    ItemsProvisions,
	Description: "List of all provisions the features violate.",
	Fields: []domain.SchemaField{
		{Name: domain.FieldID, Description: "id of the violated provision."},
		{Name: domain.FieldProvisionTitle, Description: "provision_title of the violated provision."},
		{Name: domain.FieldProvisionBody, Description: "provision_body of the violated provision."},
		{Name: domain.FieldProvisionCode, Description: "provision_code of the violated provision."},
		{Name: domain.FieldLawCode, Description: "law_code of the law the provision belongs to."},
		{Name: domain.FieldCountry, Description: "country of the law."},
		{Name: domain.FieldRegion, Description: "region of the law."},
		{Name: domain.FieldRelevantLabels, Description: "relevant_labels of the law."},
		{Name: domain.FieldReferenceFile, Description: "reference_file the provision came from."},
		{Name: domain.FieldReasoning, Description: "How the features violate the provision."},
	},
}

// LawToFeatureSchema is the answer shape for a law check: the stored
// features the law impacts.
var LawToFeatureSchema = domain.ResponseSchema{
	Title:       "Answer",
	ItemsKey:    ItemsFeatures,
	Description: "List of all features violated by the law.",
	Fields: []domain.SchemaField{
		{Name: domain.FieldFeatureID, Description: "feature_id of the violating feature."},
		{Name: domain.FieldFeatureTitle, Description: "feature_title of the violating feature."},
		{Name: domain.FieldFeatureDescription, Description: "feature_description of the violating feature."},
		{Name: domain.FieldFeatureType, Description: "feature_type of the violating feature."},
		{Name: domain.FieldProjectName, Description: "project_name the feature belongs to."},
		{Name: domain.FieldProjectID, Description: "project_id the feature belongs to."},
		{Name: domain.FieldReferenceFile, Description: "reference_file the feature came from."},
		{Name: domain.FieldReasoning, Description: "How the feature violates the law."},
	},
}

// UpdateSchema is the answer shape for a law update: at most one stored
// law the new law supersedes.
var UpdateSchema = domain.ResponseSchema{
	Title:       "Answer",
	ItemsKey:    ItemsMatches,
	Description: "The single most similar stored law, or an empty list if none.",
	Fields: []domain.SchemaField{
		{Name: domain.FieldID, Description: "id of the stored law being superseded."},
		{Name: domain.FieldLawCode, Description: "law_code of the stored law."},
		{Name: domain.FieldProvisionTitle, Description: "provision_title of the stored law."},
		{Name: domain.FieldReasoning, Description: "Why the new law supersedes the stored one."},
	},
}

// SchemaFor returns the response schema of a check direction.
func SchemaFor(d domain.Direction) domain.ResponseSchema {
	if d == domain.DirectionLawToFeature {
		return LawToFeatureSchema
	}
	return FeatureToLawSchema
}

// promptFor returns the prompt template name of a check direction.
func promptFor(d domain.Direction) string {
	if d == domain.DirectionLawToFeature {
		return driven.PromptLawCheck
	}
	return driven.PromptFeatureCheck
}
