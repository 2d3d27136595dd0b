// config_utils.go - typed getters and the exported variable table
package envconfig

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

// BoolWithDefault returns a reader for a boolean variable with a default.
// Values that do not parse count as true, so HF2ONNX_NOHISTORY=yes works.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader for a boolean variable defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a reader for a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a reader for an unsigned integer variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// EnvVar describes an environment variable for help output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every supported variable with its current value.
func AsMap() map[string]EnvVar {
	ret := map[string]EnvVar{
		"HF2ONNX_DEBUG":          {"HF2ONNX_DEBUG", LogLevel(), "Show additional debug information (e.g. HF2ONNX_DEBUG=1)"},
		"HF2ONNX_MODELS":         {"HF2ONNX_MODELS", Models(), "Base directory for exported bundles (default \"models\")"},
		"HF2ONNX_PYTHON":         {"HF2ONNX_PYTHON", Python(), "Python interpreter with transformers and optimum installed"},
		"HF2ONNX_EXPORT_TIMEOUT": {"HF2ONNX_EXPORT_TIMEOUT", ExportTimeout(), "How long a graph export may run (default \"30m\")"},
		"HF2ONNX_PARALLEL":       {"HF2ONNX_PARALLEL", Parallel(), "Maximum number of parallel file downloads"},
		"HF2ONNX_HISTORY":        {"HF2ONNX_HISTORY", History(), "Path of the conversion journal"},
		"HF2ONNX_NOHISTORY":      {"HF2ONNX_NOHISTORY", NoHistory(), "Do not record conversions in the journal"},
		"HF_TOKEN":               {"HF_TOKEN", redact(HFToken()), "Hugging Face access token for gated models"},
		"HF_ENDPOINT":            {"HF_ENDPOINT", HFEndpoint(), "Hugging Face Hub endpoint (default https://huggingface.co)"},
		"HF_HOME":                {"HF_HOME", HFHome(), "Hugging Face home directory"},
		"HF_HUB_CACHE":           {"HF_HUB_CACHE", HFHubCache(), "Hugging Face Hub cache directory"},
		"HF_HUB_OFFLINE":         {"HF_HUB_OFFLINE", HFHubOffline(), "Resolve models from the local cache only"},

		"HTTP_PROXY":  {"HTTP_PROXY", String("HTTP_PROXY")(), "HTTP proxy"},
		"HTTPS_PROXY": {"HTTPS_PROXY", String("HTTPS_PROXY")(), "HTTPS proxy"},
		"NO_PROXY":    {"NO_PROXY", String("NO_PROXY")(), "No proxy"},
	}

	if runtime.GOOS != "windows" {
		ret["http_proxy"] = EnvVar{"http_proxy", String("http_proxy")(), "HTTP proxy"}
		ret["https_proxy"] = EnvVar{"https_proxy", String("https_proxy")(), "HTTPS proxy"}
		ret["no_proxy"] = EnvVar{"no_proxy", String("no_proxy")(), "No proxy"}
	}

	return ret
}

// Values returns every variable's current value as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
