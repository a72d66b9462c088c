package driven

// PromptStore provides access to instruction templates for the model.
// Templates use {context} and {input} placeholders.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names.
const (
	// PromptFeatureCheck asks which stored provisions a new feature violates.
	PromptFeatureCheck = "feature_check"

	// PromptLawCheck asks which stored features a new law impacts.
	PromptLawCheck = "law_check"

	// PromptLawUpdate asks for the single stored law a new law supersedes.
	PromptLawUpdate = "law_update"
)
