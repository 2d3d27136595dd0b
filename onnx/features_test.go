package onnx

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfigFor(t *testing.T) {
	tests := []struct {
		modelType     string
		feature       string
		typeVocabSize int
		inputs        []string
		outputs       []string
	}{
		{"bert", FeatureTokenClassification, 2, []string{InputIDs, AttentionMask, TokenTypeIDs}, []string{OutputLogits}},
		{"distilbert", FeatureTokenClassification, 0, []string{InputIDs, AttentionMask}, []string{OutputLogits}},
		{"xlm_roberta", FeatureTokenClassification, 1, []string{InputIDs, AttentionMask}, []string{OutputLogits}},
		{"deberta-v2", FeatureTokenClassification, 0, []string{InputIDs, AttentionMask}, []string{OutputLogits}},
		{"deberta-v2", FeatureTokenClassification, 2, []string{InputIDs, AttentionMask, TokenTypeIDs}, []string{OutputLogits}},
		{"layoutlm", FeatureTokenClassification, 2, []string{InputIDs, BBox, AttentionMask, TokenTypeIDs}, []string{OutputLogits}},
		{"longformer", FeatureTokenClassification, 1, []string{InputIDs, AttentionMask, GlobalAttention}, []string{OutputLogits}},
		{"longformer", "", 1, []string{InputIDs, AttentionMask, GlobalAttention}, []string{OutputLastState}},
		{"mpnet", "feature-extraction", 0, []string{InputIDs, AttentionMask}, []string{OutputLastState}},
		{"BERT", "", 2, []string{InputIDs, AttentionMask, TokenTypeIDs}, []string{OutputLastState}},
	}

	for _, tt := range tests {
		t.Run(tt.modelType+"/"+tt.feature, func(t *testing.T) {
			cfg, err := ConfigFor(tt.modelType, tt.feature)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.inputs, cfg.Inputs(tt.typeVocabSize)); diff != "" {
				t.Errorf("inputs mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.outputs, cfg.Outputs); diff != "" {
				t.Errorf("outputs mismatch (-want +got):\n%s", diff)
			}
			if cfg.MinOpset > DefaultOpset {
				t.Errorf("MinOpset %d above default opset", cfg.MinOpset)
			}
		})
	}
}

func TestConfigForUnsupported(t *testing.T) {
	tests := []struct {
		modelType, feature, suggestion string
	}{
		{"bart", FeatureTokenClassification, `did you mean "bert"?`},
		{"robertta", FeatureTokenClassification, `did you mean "roberta"?`},
		{"mpnet", FeatureTokenClassification, ""},
		{"wav2vec2-conformer", FeatureTokenClassification, ""},
		{"", FeatureTokenClassification, ""},
	}

	for _, tt := range tests {
		t.Run(tt.modelType, func(t *testing.T) {
			_, err := ConfigFor(tt.modelType, tt.feature)
			if !errors.Is(err, ErrUnsupportedArchitecture) {
				t.Fatalf("expected ErrUnsupportedArchitecture, got %v", err)
			}
			if tt.suggestion != "" && !strings.Contains(err.Error(), tt.suggestion) {
				t.Errorf("error %q does not contain %q", err, tt.suggestion)
			}
			if tt.suggestion == "" && tt.modelType != "mpnet" && strings.Contains(err.Error(), "did you mean") {
				t.Errorf("unexpected suggestion in %q", err)
			}
		})
	}
}

func TestArchitectures(t *testing.T) {
	all := Architectures("")
	if !slices.IsSorted(all) {
		t.Errorf("Architectures not sorted: %v", all)
	}

	token := Architectures(FeatureTokenClassification)
	if slices.Contains(token, "mpnet") {
		t.Error("mpnet listed for token-classification")
	}
	if !slices.Contains(token, "bert") || !slices.Contains(Architectures("feature-extraction"), "mpnet") {
		t.Errorf("missing entries: %v", token)
	}
	if len(token) >= len(all) {
		t.Errorf("token-classification lists %d of %d model types", len(token), len(all))
	}
}

func TestFeaturesOf(t *testing.T) {
	if got := FeaturesOf("mpnet"); !slices.Equal(got, []string{FeatureDefault}) {
		t.Errorf("FeaturesOf(mpnet) = %v", got)
	}
	if got := FeaturesOf("nope"); len(got) != 0 {
		t.Errorf("FeaturesOf(nope) = %v", got)
	}
}
