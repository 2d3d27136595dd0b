// features.go - export configurations per model type and feature
//
// Mirrors the subset of transformers.onnx.FeaturesManager the exporter
// supports: for each model type the features it can be exported for and
// the graph inputs/outputs the resulting model.onnx carries.
package onnx

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Features understood by the export helper.
const (
	FeatureDefault             = "default"
	FeatureTokenClassification = "token-classification"
)

// Graph input and output names.
const (
	InputIDs        = "input_ids"
	AttentionMask   = "attention_mask"
	TokenTypeIDs    = "token_type_ids"
	BBox            = "bbox"
	GlobalAttention = "global_attention_mask"
	OutputLogits    = "logits"
	OutputLastState = "last_hidden_state"
)

// DefaultOpset is the operator set the token classification export targets.
const DefaultOpset = 14

var ErrUnsupportedArchitecture = errors.New("unsupported architecture")

// tokenTypes controls whether a model type takes token_type_ids.
type tokenTypes int

const (
	tokenTypesNever tokenTypes = iota
	tokenTypesAlways
	// tokenTypesFromConfig follows type_vocab_size > 0 (DeBERTa).
	tokenTypesFromConfig
)

// ExportConfig describes one (model type, feature) export.
type ExportConfig struct {
	ModelType string
	Feature   string
	Outputs   []string

	// MinOpset is the lowest opset the model type exports with.
	MinOpset int

	tokenTypes tokenTypes
	extra      []extraInput
}

// Inputs returns the graph input names for a model with the given
// type_vocab_size.
func (c *ExportConfig) Inputs(typeVocabSize int) []string {
	inputs := []string{InputIDs, AttentionMask}
	switch c.tokenTypes {
	case tokenTypesAlways:
		inputs = append(inputs, TokenTypeIDs)
	case tokenTypesFromConfig:
		if typeVocabSize > 0 {
			inputs = append(inputs, TokenTypeIDs)
		}
	}

	for _, e := range c.extra {
		i := len(inputs)
		if e.after != "" {
			if j := slices.Index(inputs, e.after); j >= 0 {
				i = j + 1
			}
		}
		inputs = slices.Insert(inputs, i, e.name)
	}
	return inputs
}

// extraInput is a model specific graph input placed right after another
// input, or last when after is empty.
type extraInput struct {
	name  string
	after string
}

type architecture struct {
	tokenTypes tokenTypes
	minOpset   int
	features   []string
}

var (
	bothFeatures = []string{FeatureDefault, FeatureTokenClassification}
	defaultOnly  = []string{FeatureDefault}
)

// architectures is keyed by normalized model type (lower case, hyphenated).
var architectures = map[string]architecture{
	"albert":         {tokenTypesAlways, 11, bothFeatures},
	"bert":           {tokenTypesAlways, 11, bothFeatures},
	"bloom":          {tokenTypesNever, 13, bothFeatures},
	"camembert":      {tokenTypesNever, 11, bothFeatures},
	"convbert":       {tokenTypesAlways, 11, bothFeatures},
	"data2vec-text":  {tokenTypesNever, 11, bothFeatures},
	"deberta":        {tokenTypesFromConfig, 12, bothFeatures},
	"deberta-v2":     {tokenTypesFromConfig, 12, bothFeatures},
	"distilbert":     {tokenTypesNever, 11, bothFeatures},
	"electra":        {tokenTypesAlways, 11, bothFeatures},
	"flaubert":       {tokenTypesAlways, 11, bothFeatures},
	"funnel":         {tokenTypesAlways, 11, bothFeatures},
	"gpt2":           {tokenTypesNever, 13, bothFeatures},
	"ibert":          {tokenTypesNever, 11, bothFeatures},
	"layoutlm":       {tokenTypesAlways, 11, bothFeatures},
	"longformer":     {tokenTypesNever, 14, bothFeatures},
	"mobilebert":     {tokenTypesAlways, 11, bothFeatures},
	"mpnet":          {tokenTypesNever, 11, defaultOnly},
	"roberta":        {tokenTypesNever, 11, bothFeatures},
	"roformer":       {tokenTypesAlways, 11, bothFeatures},
	"squeezebert":    {tokenTypesAlways, 11, bothFeatures},
	"xlm":            {tokenTypesAlways, 11, bothFeatures},
	"xlm-roberta":    {tokenTypesNever, 11, bothFeatures},
	"xlm-roberta-xl": {tokenTypesNever, 11, bothFeatures},
}

// extraInputs lists the inputs a model type adds to the common ones, in the
// order its OnnxConfig declares them.
var extraInputs = map[string][]extraInput{
	"layoutlm":   {{BBox, InputIDs}},
	"longformer": {{GlobalAttention, ""}},
}

// NormalizeFeature maps task aliases to the feature names used here.
// "feature-extraction" is the optimum name of the default feature.
func NormalizeFeature(feature string) string {
	switch f := strings.ToLower(strings.TrimSpace(feature)); f {
	case "", "feature-extraction":
		return FeatureDefault
	default:
		return f
	}
}

// ConfigFor returns the export configuration of a model type for a
// feature. Unknown combinations wrap ErrUnsupportedArchitecture and name
// the closest supported model type.
func ConfigFor(modelType, feature string) (*ExportConfig, error) {
	feature = NormalizeFeature(feature)
	key := strings.ReplaceAll(strings.ToLower(modelType), "_", "-")

	arch, ok := architectures[key]
	if !ok || !slices.Contains(arch.features, feature) {
		if suggestion := closestArchitecture(key, feature); suggestion != "" && suggestion != key {
			return nil, fmt.Errorf("%w: model type %q does not support %s, did you mean %q?", ErrUnsupportedArchitecture, modelType, feature, suggestion)
		}
		return nil, fmt.Errorf("%w: model type %q does not support %s", ErrUnsupportedArchitecture, modelType, feature)
	}

	outputs := []string{OutputLastState}
	if feature == FeatureTokenClassification {
		outputs = []string{OutputLogits}
	}

	return &ExportConfig{
		ModelType:  key,
		Feature:    feature,
		Outputs:    outputs,
		MinOpset:   arch.minOpset,
		tokenTypes: arch.tokenTypes,
		extra:      extraInputs[key],
	}, nil
}

// Architectures returns the sorted model types supporting feature. An empty
// feature lists every model type.
func Architectures(feature string) []string {
	var names []string
	for name, arch := range architectures {
		if feature == "" || slices.Contains(arch.features, NormalizeFeature(feature)) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// FeaturesOf returns the features a model type can be exported for.
func FeaturesOf(modelType string) []string {
	return slices.Clone(architectures[modelType].features)
}

func closestArchitecture(modelType, feature string) string {
	if modelType == "" {
		return ""
	}

	best, score := "", 4
	for _, name := range Architectures(feature) {
		if d := levenshtein.ComputeDistance(modelType, name); d < score {
			best, score = name, d
		}
	}
	return best
}
