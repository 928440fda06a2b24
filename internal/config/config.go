package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SegmenterConfig configures how documents are split into chunks.
type SegmenterConfig struct {
	MaxChunkChars int `yaml:"max_chunk_chars"`
	OverlapChars  int `yaml:"overlap_chars"`
	MinChunkChars int `yaml:"min_chunk_chars"`
}

// RankerConfig configures hybrid scoring. Weights and thresholds are
// configuration, not constants.
type RankerConfig struct {
	TopK          int     `yaml:"top_k"`
	MinScore      float64 `yaml:"min_score"`
	VectorWeight  float64 `yaml:"vector_weight"`
	LexicalWeight float64 `yaml:"lexical_weight"`
}

// ContextConfig bounds the assembled context.
type ContextConfig struct {
	MaxChunks       int `yaml:"max_chunks"`
	MaxChars        int `yaml:"max_chars"`
	SectionMaxChars int `yaml:"section_max_chars"`
}

// DialogConfig configures the policy gate and generation call.
type DialogConfig struct {
	MinConfidence      float64 `yaml:"min_confidence"`
	MaxQuestions       int     `yaml:"max_questions"`
	MaxHistoryMessages int     `yaml:"max_history_messages"`
	GenerateTimeout    int     `yaml:"generate_timeout_secs"`
	MaxAnswerTokens    int     `yaml:"max_answer_tokens"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// OpenAIGeneratorConfig holds configuration for the OpenAI-compatible generator.
type OpenAIGeneratorConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeneratorConfig selects and configures the generation backend.
type GeneratorConfig struct {
	Type   string                 `yaml:"type"`
	OpenAI *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	JSON  bool   `yaml:"json"`
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Ranker    RankerConfig    `yaml:"ranker"`
	Context   ContextConfig   `yaml:"context"`
	Dialog    DialogConfig    `yaml:"dialog"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Versions  []string        `yaml:"versions"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./kbchat.yaml first, then ~/.config/kbchat/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "kbchat.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kbchat", "config.yaml"), nil
}

func defaultVersions() []string {
	return []string{
		"6.1 (latest)",
		"6.0.2",
		"6.0.1",
		"6.0",
		"5.1.2",
		"5.1.1",
		"5.1",
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Segmenter: SegmenterConfig{MaxChunkChars: 1400, OverlapChars: 200, MinChunkChars: 200},
		Ranker:    RankerConfig{TopK: 5, MinScore: 0.2, VectorWeight: 0.8, LexicalWeight: 0.2},
		Context:   ContextConfig{MaxChunks: 4, MaxChars: 6000, SectionMaxChars: 1200},
		Dialog: DialogConfig{
			MinConfidence:      0.30,
			MaxQuestions:       2,
			MaxHistoryMessages: 10,
			GenerateTimeout:    60,
			MaxAnswerTokens:    512,
		},
		Embedder:  EmbedderConfig{Type: "hash", Dimension: 384},
		Generator: GeneratorConfig{Type: "mock"},
		Storage:   StorageConfig{Path: "kbchat.db"},
		Logging:   LoggingConfig{JSON: false, Level: "info"},
		Versions:  defaultVersions(),
	}
}

func applyDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Segmenter.MaxChunkChars == 0 {
		cfg.Segmenter = def.Segmenter
	}
	if cfg.Ranker.TopK == 0 {
		cfg.Ranker.TopK = def.Ranker.TopK
	}
	if cfg.Ranker.VectorWeight == 0 && cfg.Ranker.LexicalWeight == 0 {
		cfg.Ranker.VectorWeight = def.Ranker.VectorWeight
		cfg.Ranker.LexicalWeight = def.Ranker.LexicalWeight
	}
	if cfg.Context.MaxChunks == 0 {
		cfg.Context = def.Context
	}
	if cfg.Dialog.MinConfidence == 0 {
		cfg.Dialog.MinConfidence = def.Dialog.MinConfidence
	}
	if cfg.Dialog.MaxQuestions == 0 {
		cfg.Dialog.MaxQuestions = def.Dialog.MaxQuestions
	}
	if cfg.Dialog.MaxHistoryMessages == 0 {
		cfg.Dialog.MaxHistoryMessages = def.Dialog.MaxHistoryMessages
	}
	if cfg.Dialog.GenerateTimeout == 0 {
		cfg.Dialog.GenerateTimeout = def.Dialog.GenerateTimeout
	}
	if cfg.Dialog.MaxAnswerTokens == 0 {
		cfg.Dialog.MaxAnswerTokens = def.Dialog.MaxAnswerTokens
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = def.Generator.Type
	}
	if cfg.Generator.Type == "openai" && cfg.Generator.OpenAI != nil {
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-4o-mini"
		}
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = def.Storage.Path
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if len(cfg.Versions) == 0 {
		cfg.Versions = defaultVersions()
	}
}
