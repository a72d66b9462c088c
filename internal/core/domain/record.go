package domain

// NotAvailable is rendered in place of an absent or empty record field.
const NotAvailable = "N/A"

// RecordKind identifies the typed variant of a Record.
type RecordKind string

// Record kinds.
const (
	RecordKindLaw        RecordKind = "law"
	RecordKindFeature    RecordKind = "feature"
	RecordKindTerm       RecordKind = "term"
	RecordKindCompliance RecordKind = "compliance"
	RecordKindFields     RecordKind = "fields"
)

// Record field names, shared by NDJSON input, document metadata and the
// response schemas.
const (
	FieldID                 = "id"
	FieldReferenceFile      = "reference_file"
	FieldProvisionTitle     = "provision_title"
	FieldProvisionBody      = "provision_body"
	FieldProvisionCode      = "provision_code"
	FieldLawCode            = "law_code"
	FieldCountry            = "country"
	FieldRegion             = "region"
	FieldRelevantLabels     = "relevant_labels"
	FieldFeatureID          = "feature_id"
	FieldFeatureTitle       = "feature_title"
	FieldFeatureDescription = "feature_description"
	FieldFeatureType        = "feature_type"
	FieldProjectName        = "project_name"
	FieldProjectID          = "project_id"
	FieldVariableName       = "variable_name"
	FieldVariableDesc       = "variable_description"
	FieldComplianceTitle    = "compliance_title"
	FieldComplianceDesc     = "compliance_description"
	FieldReasoning          = "reasoning"
)

// Record is a parsed input value with named string fields.
// Field reports false when the record has no such field or the field is empty.
type Record interface {
	Kind() RecordKind
	Field(name string) (string, bool)
}

// FieldOrNA returns the named field, or NotAvailable when it is absent.
func FieldOrNA(r Record, name string) string {
	if v, ok := r.Field(name); ok {
		return v
	}
	return NotAvailable
}

func present(v string) (string, bool) {
	return v, v != ""
}

// LawRecord is one legal provision, flattened with its parent law's fields.
type LawRecord struct {
	ID             string `json:"id"`
	ProvisionTitle string `json:"provision_title"`
	ProvisionBody  string `json:"provision_body"`
	ProvisionCode  string `json:"provision_code"`
	LawCode        string `json:"law_code"`
	Country        string `json:"country"`
	Region         string `json:"region"`
	RelevantLabels string `json:"relevant_labels"`
	ReferenceFile  string `json:"reference_file"`
}

// Kind implements Record.
func (LawRecord) Kind() RecordKind { return RecordKindLaw }

// Field implements Record.
func (r LawRecord) Field(name string) (string, bool) {
	switch name {
	case FieldID:
		return present(r.ID)
	case FieldProvisionTitle:
		return present(r.ProvisionTitle)
	case FieldProvisionBody:
		return present(r.ProvisionBody)
	case FieldProvisionCode:
		return present(r.ProvisionCode)
	case FieldLawCode:
		return present(r.LawCode)
	case FieldCountry:
		return present(r.Country)
	case FieldRegion:
		return present(r.Region)
	case FieldRelevantLabels:
		return present(r.RelevantLabels)
	case FieldReferenceFile:
		return present(r.ReferenceFile)
	default:
		return "", false
	}
}

// FeatureRecord is one product feature from a project specification.
type FeatureRecord struct {
	ID                 string `json:"id"`
	FeatureID          string `json:"feature_id"`
	FeatureTitle       string `json:"feature_title"`
	FeatureDescription string `json:"feature_description"`
	FeatureType        string `json:"feature_type"`
	ProjectName        string `json:"project_name"`
	ProjectID          string `json:"project_id"`
	ReferenceFile      string `json:"reference_file"`
}

// Kind implements Record.
func (FeatureRecord) Kind() RecordKind { return RecordKindFeature }

// Field implements Record.
func (r FeatureRecord) Field(name string) (string, bool) {
	switch name {
	case FieldID:
		return present(r.ID)
	case FieldFeatureID:
		return present(r.FeatureID)
	case FieldFeatureTitle:
		return present(r.FeatureTitle)
	case FieldFeatureDescription:
		return present(r.FeatureDescription)
	case FieldFeatureType:
		return present(r.FeatureType)
	case FieldProjectName:
		return present(r.ProjectName)
	case FieldProjectID:
		return present(r.ProjectID)
	case FieldReferenceFile:
		return present(r.ReferenceFile)
	default:
		return "", false
	}
}

// TermRecord is one data dictionary entry of a project.
type TermRecord struct {
	VariableName        string `json:"variable_name"`
	VariableDescription string `json:"variable_description"`
}

// Kind implements Record.
func (TermRecord) Kind() RecordKind { return RecordKindTerm }

// Field implements Record.
func (r TermRecord) Field(name string) (string, bool) {
	switch name {
	case FieldVariableName:
		return present(r.VariableName)
	case FieldVariableDesc:
		return present(r.VariableDescription)
	default:
		return "", false
	}
}

// ComplianceRecord is a compliance rule the project already conforms to.
type ComplianceRecord struct {
	ComplianceTitle       string `json:"compliance_title"`
	ComplianceDescription string `json:"compliance_description"`
}

// Kind implements Record.
func (ComplianceRecord) Kind() RecordKind { return RecordKindCompliance }

// Field implements Record.
func (r ComplianceRecord) Field(name string) (string, bool) {
	switch name {
	case FieldComplianceTitle:
		return present(r.ComplianceTitle)
	case FieldComplianceDesc:
		return present(r.ComplianceDescription)
	default:
		return "", false
	}
}

// Fields is an untyped record keyed by field name.
type Fields map[string]string

// Kind implements Record.
func (Fields) Kind() RecordKind { return RecordKindFields }

// Field implements Record.
func (f Fields) Field(name string) (string, bool) {
	return present(f[name])
}

// LawsAsRecords converts typed laws to the Record interface.
func LawsAsRecords(laws []LawRecord) []Record {
	out := make([]Record, len(laws))
	for i := range laws {
		out[i] = laws[i]
	}
	return out
}

// FeaturesAsRecords converts typed features to the Record interface.
func FeaturesAsRecords(features []FeatureRecord) []Record {
	out := make([]Record, len(features))
	for i := range features {
		out[i] = features[i]
	}
	return out
}

// TermsAsRecords converts typed terms to the Record interface.
func TermsAsRecords(terms []TermRecord) []Record {
	out := make([]Record, len(terms))
	for i := range terms {
		out[i] = terms[i]
	}
	return out
}

// ComplianceAsRecords converts typed compliance rules to the Record interface.
func ComplianceAsRecords(rules []ComplianceRecord) []Record {
	out := make([]Record, len(rules))
	for i := range rules {
		out[i] = rules[i]
	}
	return out
}

// ProjectBundle is the parsed output for one product project: its features
// plus the data dictionary and conformed compliance rules that give them context.
type ProjectBundle struct {
	Features   []FeatureRecord
	Terms      []TermRecord
	Compliance []ComplianceRecord
}

// Documents renders every feature of the bundle as a storable document.
func (b ProjectBundle) Documents() []Document {
	docs := make([]Document, len(b.Features))
	for i, f := range b.Features {
		docs[i] = FeatureDocument(f, b.Terms, b.Compliance)
	}
	return docs
}
