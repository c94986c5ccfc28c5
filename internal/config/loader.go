package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "mock"},
	"stt":        {"openai", "mock"},
	"tts":        {"openai", "mock"},
	"embeddings": {"openai", "ollama", "mock"},
}

// MaxFollowupsHardLimit is the domain ceiling on per-question follow-ups.
// Configuration may never raise the cap past it.
const MaxFollowupsHardLimit = 3

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected so typos fail loudly instead of
// silently selecting a default.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability
	if cfg.Providers.LLM.Name == "" && !cfg.Providers.UseMockAdapters {
		errs = append(errs, fmt.Errorf("providers.llm is required unless use_mock_adapters is set: answer evaluation cannot run without an LLM"))
	}
	if cfg.Providers.STT.Name == "" && !cfg.Providers.UseMockAdapters {
		slog.Warn("providers.stt is not configured; spoken answers will fail and clients must use text mode")
	}
	if cfg.Providers.TTS.Name == "" && !cfg.Providers.UseMockAdapters {
		slog.Warn("providers.tts is not configured; questions will be delivered text-only")
	}

	// Speech
	if cfg.Speech.Speed != 0 {
		if cfg.Speech.Speed < 0.5 || cfg.Speech.Speed > 2.0 {
			errs = append(errs, fmt.Errorf("speech.speed %.2f is out of range [0.5, 2.0]", cfg.Speech.Speed))
		}
	}
	if cfg.Speech.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("speech.cache_size must not be negative"))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; interviews will be held in memory and lost on restart")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions must be positive when providers.embeddings is configured"))
	}

	// Interview tunables
	iv := cfg.Interview
	if iv.TheoreticalWeight < 0 || iv.TheoreticalWeight > 1 {
		errs = append(errs, fmt.Errorf("interview.theoretical_weight %.3f is out of range [0, 1]", iv.TheoreticalWeight))
	}
	if iv.SpeakingWeight < 0 || iv.SpeakingWeight > 1 {
		errs = append(errs, fmt.Errorf("interview.speaking_weight %.3f is out of range [0, 1]", iv.SpeakingWeight))
	}
	if sum := iv.TheoreticalWeight + iv.SpeakingWeight; sum < 0.999 || sum > 1.001 {
		errs = append(errs, fmt.Errorf("interview.theoretical_weight + interview.speaking_weight must sum to 1.0, got %.3f", sum))
	}
	if iv.MaxFollowupsPerQuestion < 1 || iv.MaxFollowupsPerQuestion > MaxFollowupsHardLimit {
		errs = append(errs, fmt.Errorf("interview.max_followups_per_question %d is out of range [1, %d]", iv.MaxFollowupsPerQuestion, MaxFollowupsHardLimit))
	}
	if iv.SimilarityQualityThreshold <= 0 || iv.SimilarityQualityThreshold > 1 {
		errs = append(errs, fmt.Errorf("interview.similarity_quality_threshold %.3f is out of range (0, 1]", iv.SimilarityQualityThreshold))
	}
	if iv.SpeakingDefaultWhenAbsent < 0 || iv.SpeakingDefaultWhenAbsent > 100 {
		errs = append(errs, fmt.Errorf("interview.speaking_default_when_absent %.1f is out of range [0, 100]", iv.SpeakingDefaultWhenAbsent))
	}

	// Timeouts
	for _, t := range []struct {
		key   string
		value int
	}{
		{"turn_deadline_seconds", cfg.Timeouts.TurnDeadlineSeconds},
		{"stt_timeout_seconds", cfg.Timeouts.STTTimeoutSeconds},
		{"llm_timeout_seconds", cfg.Timeouts.LLMTimeoutSeconds},
		{"tts_timeout_seconds", cfg.Timeouts.TTSTimeoutSeconds},
		{"vector_timeout_seconds", cfg.Timeouts.VectorTimeoutSeconds},
	} {
		if t.value < 1 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be at least 1", t.key))
		}
	}
	if cfg.Timeouts.LLMTimeoutSeconds > cfg.Timeouts.TurnDeadlineSeconds {
		errs = append(errs, fmt.Errorf("timeouts.llm_timeout_seconds %d exceeds the turn deadline %d", cfg.Timeouts.LLMTimeoutSeconds, cfg.Timeouts.TurnDeadlineSeconds))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
