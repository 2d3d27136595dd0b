// types.go - config.json and snapshot types shared by the registry code
package huggingface

// ConfigFile is the name of the model configuration inside a repository.
const ConfigFile = "config.json"

// Config holds the parts of a transformers config.json the exporter needs.
type Config struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures,omitempty"`

	// ID2Label maps stringified class indices to label names. Token
	// classification heads carry it; base models usually do not.
	ID2Label  map[string]string `json:"id2label,omitempty"`
	Label2ID  map[string]int    `json:"label2id,omitempty"`
	NumLabels int               `json:"num_labels,omitempty"`

	HiddenSize            int `json:"hidden_size,omitempty"`
	NumHiddenLayers       int `json:"num_hidden_layers,omitempty"`
	NumAttentionHeads     int `json:"num_attention_heads,omitempty"`
	VocabSize             int `json:"vocab_size,omitempty"`
	MaxPositionEmbeddings int `json:"max_position_embeddings,omitempty"`
	TypeVocabSize         int `json:"type_vocab_size,omitempty"`

	TorchDtype          string `json:"torch_dtype,omitempty"`
	TransformersVersion string `json:"transformers_version,omitempty"`
}

// Snapshot is a model resolved to a local directory: configuration,
// weights and tokenizer files side by side, as from_pretrained expects.
type Snapshot struct {
	ID        string
	Revision  string
	Dir       string
	Config    *Config
	Weights   []string
	Tokenizer *Tokenizer
}

// HuggingFaceError carries the failing operation and model.
type HuggingFaceError struct {
	Op      string
	ModelID string
	Err     error
}

func (e *HuggingFaceError) Error() string {
	if e.ModelID != "" {
		return "huggingface " + e.Op + " [" + e.ModelID + "]: " + e.Err.Error()
	}
	return "huggingface " + e.Op + ": " + e.Err.Error()
}

func (e *HuggingFaceError) Unwrap() error {
	return e.Err
}
