package envconfig

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestModels(t *testing.T) {
	t.Setenv("HF2ONNX_MODELS", "")
	if got := Models(); got != "models" {
		t.Errorf("Models() = %q, want %q", got, "models")
	}

	t.Setenv("HF2ONNX_MODELS", " '/srv/onnx' ")
	if got := Models(); got != "/srv/onnx" {
		t.Errorf("Models() = %q, want %q", got, "/srv/onnx")
	}
}

func TestExportTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":      30 * time.Minute,
		"1h":    time.Hour,
		"90":    90 * time.Second,
		"-5m":   30 * time.Minute,
		"0":     30 * time.Minute,
		"bogus": 30 * time.Minute,
	}

	for tt, expect := range cases {
		t.Run(tt, func(t *testing.T) {
			t.Setenv("HF2ONNX_EXPORT_TIMEOUT", tt)
			if actual := ExportTimeout(); actual != expect {
				t.Errorf("%s: expected %s, got %s", tt, expect, actual)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"t":     slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("HF2ONNX_DEBUG", k)
			if i := LogLevel(); i != v {
				t.Errorf("%s: expected %d, got %d", k, v, i)
			}
		})
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"true":  true,
		"false": false,
		"1":     true,
		"0":     false,
		"yes":   true,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("HF2ONNX_NOHISTORY", k)
			if b := NoHistory(); b != v {
				t.Errorf("%s: expected %t, got %t", k, v, b)
			}
		})
	}
}

func TestParallel(t *testing.T) {
	cases := map[string]uint{
		"":    4,
		"8":   8,
		"-1":  4,
		"abc": 4,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("HF2ONNX_PARALLEL", k)
			if n := Parallel(); n != v {
				t.Errorf("%s: expected %d, got %d", k, v, n)
			}
		})
	}
}

func TestAsMapRedactsToken(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf_secret")
	got := AsMap()["HF_TOKEN"]
	want := EnvVar{"HF_TOKEN", "********", "Hugging Face access token for gated models"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HF_TOKEN mismatch (-want +got):\n%s", diff)
	}
}
