package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads instruction templates from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// The store uses lazy initialisation - files are only created when first accessed,
// not in the constructor. This makes testing easier and avoids unexpected I/O.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptFeatureCheck: `You are an expert in legal analysis. Your task is to identify provisions from the provided context that are violated by the user's input.

You MUST ONLY respond with a JSON object that conforms to the 'Answer' schema.
Your response should start with a '{' and end with a '}'. Do not include any other text, explanations, or markdown formatting.

The input lists compliance rules the project already conforms to. If one of them resolves a provision violation, ignore that violation.
If you find relevant provisions in the context, extract them according to the schema.
If the context is empty or you cannot find any relevant provisions, you MUST return a JSON object with an empty list for the "provisions" key.

Context:
{context}

Input:
{input}`,

	driven.PromptLawCheck: `You are an expert in feature analysis. Your task is to identify the existing product features that may be impacted by the new law.

You MUST ONLY respond with a JSON object that conforms to the 'Answer' schema.
Your response should start with a '{' and end with a '}'. Do not include any other text, explanations, or markdown formatting.

If you find impacted features in the context, extract them according to the schema.
If the context is empty or no feature is impacted, you MUST return a JSON object with an empty list for the "features" key.

Input:
{input}

Retrieved Existing Product Features:
{context}`,

	driven.PromptLawUpdate: `Flag the ONE stored law that the new law supersedes: it must have a similar law code and title, with no or only slight changes to its description.

You MUST ONLY respond with a JSON object that conforms to the 'Answer' schema.
Your response should start with a '{' and end with a '}'. Do not include any other text, explanations, or markdown formatting.

Copy the "id" of the superseded law exactly as it appears in the context.
If no stored law is superseded, you MUST return a JSON object with an empty list for the "matches" key.

Stored laws:
{context}

New law:
{input}`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.complyref/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, DefaultDirName, "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Returns cached value if available, otherwise loads from file.
// Falls back to embedded default if file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	// Ensure directory and defaults exist (lazy init)
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		// Fall back to embedded defaults if init failed
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	// Check cache first (read lock)
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// Load from file (no lock held during I/O)
	prompt, err := s.loadFromFile(name)
	if err != nil {
		// Fall back to embedded default
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}
	if missing := missingPlaceholders(prompt); len(missing) > 0 {
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			logger.Warn("prompt %s.txt lacks %s, using the built-in template", name, strings.Join(missing, " and "))
			prompt = defaultPrompt
		}
	}

	// Cache the result (write lock)
	// Use double-check pattern to avoid overwriting concurrent loads
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		// Another goroutine loaded it first, use their value
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once on first Load().
func (s *PromptStore) initialise() {
	// Create directory
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	// Create README
	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// Placeholders every template must carry.
var requiredPlaceholders = []string{"{context}", "{input}"}

func missingPlaceholders(prompt string) []string {
	var missing []string
	for _, p := range requiredPlaceholders {
		if !strings.Contains(prompt, p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# complyref prompts

Instruction templates sent to the model with every structured request.

## Files

- ` + "`feature_check.txt`" + ` - Which stored provisions do new features violate
- ` + "`law_check.txt`" + ` - Which stored features does a new law impact
- ` + "`law_update.txt`" + ` - Which stored law does a new law supersede

## Placeholders

- ` + "`{context}`" + ` - Retrieved evidence documents
- ` + "`{input}`" + ` - The records being checked

The response schema is sent separately; keep the item key names used in
the defaults ("provisions", "features", "matches") if you mention them.
A file missing either placeholder is ignored in favour of the default.
Delete a file to restore its default on the next run.
`
	return os.WriteFile(path, []byte(content), 0600)
}
