package services

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDims       = "embedding.dimensions"
	keyEmbedRPM        = "embedding.requests_per_minute"
	keyLLMProvider     = "llm.provider"
	keyLLMModel        = "llm.model"
	keyLLMBaseURL      = "llm.base_url"
	keyLLMAPIKey       = "llm.api_key"
	keyLLMTemperature  = "llm.temperature"
	keyStoreDataDir    = "store.data_dir"
	keyStoreLawDir     = "store.law_dir"
	keyStoreFeatureDir = "store.feature_dir"
	keyIngestBatch     = "ingest.batch_size"
	keyIngestDelay     = "ingest.delay_ms"
	keyRetrThreshold   = "retrieval.threshold"
	keyRetrBatch       = "retrieval.batch_size"
	keyRetrDelay       = "retrieval.delay_ms"
	keyUpdThreshold    = "update.threshold"
	keyUpdInsert       = "update.insert_on_uncertain"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
)

// settingKeys lists the keys Set accepts, their value kind and the
// validator tag a new value must pass.
var settingKeys = map[string]struct {
	kind valueKind
	tag  string
}{
	keyEmbedProvider:   {kindString, "oneof=gemini ollama openai"},
	keyEmbedModel:      {kindString, "required"},
	keyEmbedBaseURL:    {kindString, "omitempty,url"},
	keyEmbedAPIKey:     {kindString, ""},
	keyEmbedDims:       {kindInt, "gt=0"},
	keyEmbedRPM:        {kindInt, "gte=0"},
	keyLLMProvider:     {kindString, "oneof=gemini ollama openai anthropic"},
	keyLLMModel:        {kindString, "required"},
	keyLLMBaseURL:      {kindString, "omitempty,url"},
	keyLLMAPIKey:       {kindString, ""},
	keyLLMTemperature:  {kindFloat, "gte=0,lte=2"},
	keyStoreDataDir:    {kindString, ""},
	keyStoreLawDir:     {kindString, "required"},
	keyStoreFeatureDir: {kindString, "required"},
	keyIngestBatch:     {kindInt, "gt=0"},
	keyIngestDelay:     {kindInt, "gte=0"},
	keyRetrThreshold:   {kindFloat, "gte=0,lte=1"},
	keyRetrBatch:       {kindInt, "gte=0"},
	keyRetrDelay:       {kindInt, "gte=0"},
	keyUpdThreshold:    {kindFloat, "gte=0,lte=1"},
	keyUpdInsert:       {kindBool, ""},
}

// SettingKeys returns every key accepted by Set, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// apiKeyEnv lists the environment variables consulted, in order, when a
// provider's API key is not configured.
var apiKeyEnv = map[domain.AIProvider][]string{
	domain.AIProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	domain.AIProviderOpenAI:    {"OPENAI_API_KEY"},
	domain.AIProviderAnthropic: {"ANTHROPIC_API_KEY"},
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	validate    *validator.Validate
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
// aiValidator may be nil, which skips connectivity checks.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings. Unset keys take their
// defaults and missing API keys fall back to the environment.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	embedProvider := s.getProvider(keyEmbedProvider, d.Embedding.Provider)
	llmProvider := s.getProvider(keyLLMProvider, d.LLM.Provider)

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:          embedProvider,
			Model:             s.getString(keyEmbedModel, defaultModel(domain.DefaultEmbeddingModels(), embedProvider, d.Embedding.Model)),
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:            s.apiKey(keyEmbedAPIKey, embedProvider),
			Dimensions:        s.getInt(keyEmbedDims, d.Embedding.Dimensions),
			RequestsPerMinute: s.getInt(keyEmbedRPM, d.Embedding.RequestsPerMinute),
		},
		LLM: domain.LLMSettings{
			Provider:    llmProvider,
			Model:       s.getString(keyLLMModel, defaultModel(domain.DefaultLLMModels(), llmProvider, d.LLM.Model)),
			BaseURL:     s.configStore.GetString(keyLLMBaseURL),
			APIKey:      s.apiKey(keyLLMAPIKey, llmProvider),
			Temperature: s.getFloat(keyLLMTemperature, d.LLM.Temperature),
		},
		Store: domain.StoreSettings{
			DataDir:    s.getString(keyStoreDataDir, d.Store.DataDir),
			LawDir:     s.getString(keyStoreLawDir, d.Store.LawDir),
			FeatureDir: s.getString(keyStoreFeatureDir, d.Store.FeatureDir),
		},
		Ingest: domain.IngestSettings{
			BatchSize: s.getInt(keyIngestBatch, d.Ingest.BatchSize),
			Delay:     s.getMillis(keyIngestDelay, d.Ingest.Delay),
		},
		Retrieval: domain.RetrievalSettings{
			Threshold: s.getFloat(keyRetrThreshold, d.Retrieval.Threshold),
			BatchSize: s.getInt(keyRetrBatch, d.Retrieval.BatchSize),
			Delay:     s.getMillis(keyRetrDelay, d.Retrieval.Delay),
		},
		Update: domain.UpdateSettings{
			Threshold:         s.getFloat(keyUpdThreshold, d.Update.Threshold),
			InsertOnUncertain: s.getBool(keyUpdInsert, d.Update.InsertOnUncertain),
		},
	}

	return settings, nil
}

// Save persists application settings. Empty API keys are not written, so
// keys supplied by the environment stay out of the config file.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key string
		val any
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedRPM, settings.Embedding.RequestsPerMinute},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTemperature, settings.LLM.Temperature},
		{keyStoreDataDir, settings.Store.DataDir},
		{keyStoreLawDir, settings.Store.LawDir},
		{keyStoreFeatureDir, settings.Store.FeatureDir},
		{keyIngestBatch, settings.Ingest.BatchSize},
		{keyIngestDelay, settings.Ingest.Delay.Milliseconds()},
		{keyRetrThreshold, settings.Retrieval.Threshold},
		{keyRetrBatch, settings.Retrieval.BatchSize},
		{keyRetrDelay, settings.Retrieval.Delay.Milliseconds()},
		{keyUpdThreshold, settings.Update.Threshold},
		{keyUpdInsert, settings.Update.InsertOnUncertain},
	}
	if settings.Embedding.APIKey != "" {
		values = append(values, struct {
			key string
			val any
		}{keyEmbedAPIKey, settings.Embedding.APIKey})
	}
	if settings.LLM.APIKey != "" {
		values = append(values, struct {
			key string
			val any
		}{keyLLMAPIKey, settings.LLM.APIKey})
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Set parses value for the dotted key and persists it.
func (s *SettingsService) Set(key, value string) error {
	def, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, domain.ErrInvalidInput)
	}

	var parsed any
	var err error
	switch def.kind {
	case kindInt:
		parsed, err = strconv.Atoi(value)
	case kindFloat:
		parsed, err = strconv.ParseFloat(value, 64)
	case kindBool:
		parsed, err = strconv.ParseBool(value)
	default:
		parsed = value
	}
	if err != nil {
		return fmt.Errorf("setting %s: %q: %w", key, value, domain.ErrInvalidInput)
	}

	if def.tag != "" {
		if err := s.validate.Var(parsed, def.tag); err != nil {
			return fmt.Errorf("setting %s: %q fails %s: %w", key, value, def.tag, domain.ErrInvalidInput)
		}
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks the current settings against their constraints and that
// the configured providers can serve their role.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if err := s.validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("setting %s fails %s: %w", verrs[0].Namespace(), verrs[0].Tag(), domain.ErrInvalidInput)
		}
		return fmt.Errorf("validate settings: %w", err)
	}

	if !settings.Embedding.Provider.SupportsEmbeddings() {
		return fmt.Errorf("provider %s does not support embeddings: %w", settings.Embedding.Provider, domain.ErrInvalidInput)
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("embedding provider %s needs an API key: %w", settings.Embedding.Provider, domain.ErrEmbeddingUnavailable)
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("LLM provider %s needs an API key: %w", settings.LLM.Provider, domain.ErrLLMUnavailable)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) apiKey(key string, provider domain.AIProvider) string {
	if v := s.configStore.GetString(key); v != "" {
		return v
	}
	for _, env := range apiKeyEnv[provider] {
		if v := s.getenv(env); v != "" {
			return v
		}
	}
	return ""
}

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getMillis(key string, defaultVal time.Duration) time.Duration {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return time.Duration(s.configStore.GetInt(key)) * time.Millisecond
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

// defaultModel picks the provider's default model, so switching provider
// without naming a model does not keep another provider's model name.
func defaultModel(models map[domain.AIProvider]string, provider domain.AIProvider, fallback string) string {
	if m, ok := models[provider]; ok {
		return m
	}
	return fallback
}
