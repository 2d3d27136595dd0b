// detect.go - config.json parsing and model type normalization
package huggingface

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrConfigNotFound = errors.New("config.json not found")
	ErrInvalidConfig  = errors.New("invalid config.json")
)

// LoadConfig reads and parses config.json from a model directory.
func LoadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &HuggingFaceError{Op: "config", Err: ErrConfigNotFound}
		}
		return nil, &HuggingFaceError{Op: "config", Err: fmt.Errorf("read: %w", err)}
	}

	return ParseConfig(data)
}

// ParseConfig parses the raw bytes of a config.json. A config must name a
// model_type or at least one architecture.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &HuggingFaceError{Op: "parse", Err: fmt.Errorf("%w: %v", ErrInvalidConfig, err)}
	}
	if cfg.ModelType == "" && len(cfg.Architectures) == 0 {
		return nil, &HuggingFaceError{Op: "parse", Err: fmt.Errorf("%w: no model_type or architectures", ErrInvalidConfig)}
	}
	return &cfg, nil
}

// NormalizedModelType returns the model type in the hyphenated lower-case
// form used by the export registries ("xlm_roberta" -> "xlm-roberta").
// When model_type is missing it is derived from the first architecture.
func (c *Config) NormalizedModelType() string {
	t := c.ModelType
	if t == "" && len(c.Architectures) > 0 {
		t = architectureBase(c.Architectures[0])
	}
	return strings.ReplaceAll(strings.ToLower(t), "_", "-")
}

var architectureHeads = []string{
	"ForTokenClassification",
	"ForSequenceClassification",
	"ForQuestionAnswering",
	"ForMaskedLM",
	"ForCausalLM",
	"ForPreTraining",
	"ForMultipleChoice",
	"Model",
}

// architectureBase strips the task head from a class name, so
// "BertForTokenClassification" becomes "Bert".
func architectureBase(arch string) string {
	for _, head := range architectureHeads {
		if base, ok := strings.CutSuffix(arch, head); ok && base != "" {
			return base
		}
	}
	return arch
}

// HasTokenClassificationHead reports whether the config declares a token
// classification architecture.
func (c *Config) HasTokenClassificationHead() bool {
	for _, arch := range c.Architectures {
		if strings.HasSuffix(arch, "ForTokenClassification") {
			return true
		}
	}
	return false
}
