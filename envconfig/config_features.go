// config_features.go - flags, counters and Hugging Face variables
package envconfig

var (
	// NoHistory disables the sqlite run journal.
	NoHistory = Bool("HF2ONNX_NOHISTORY")

	// Parallel bounds the number of files downloaded at once.
	Parallel = Uint("HF2ONNX_PARALLEL", 4)
)

// Variables shared with the Python huggingface_hub tooling.
var (
	HFToken    = String("HF_TOKEN")
	HFEndpoint = String("HF_ENDPOINT")
	HFHome     = String("HF_HOME")
	HFHubCache = String("HF_HUB_CACHE")
)

// HFHubOffline resolves models from the local cache only.
var HFHubOffline = Bool("HF_HUB_OFFLINE")
