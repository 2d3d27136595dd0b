package export

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/hf2onnx/huggingface"
)

func TestLabelsFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  huggingface.Config
		want string
	}{
		{
			name: "id2label numeric order",
			cfg:  huggingface.Config{ID2Label: map[string]string{"2": "B-PER", "0": "O", "11": "I-LOC", "1": "I-PER"}},
			want: `{"0":"O","1":"I-PER","2":"B-PER","11":"I-LOC"}`,
		},
		{
			name: "keys read as integers",
			cfg:  huggingface.Config{ID2Label: map[string]string{"00": "O", "01": "B-PER", "+2": "I-PER", " 10": "B-LOC"}},
			want: `{"0":"O","1":"B-PER","2":"I-PER","10":"B-LOC"}`,
		},
		{
			name: "label2id fallback",
			cfg:  huggingface.Config{Label2ID: map[string]int{"NEG": 0, "POS": 1}},
			want: `{"0":"NEG","1":"POS"}`,
		},
		{
			name: "num_labels fallback",
			cfg:  huggingface.Config{NumLabels: 3},
			want: `{"0":"LABEL_0","1":"LABEL_1","2":"LABEL_2"}`,
		},
		{
			name: "transformers default",
			cfg:  huggingface.Config{},
			want: `{"0":"LABEL_0","1":"LABEL_1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, err := LabelsFromConfig(&tt.cfg)
			if err != nil {
				t.Fatal(err)
			}

			b, err := json.Marshal(labels)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, string(b)); diff != "" {
				t.Errorf("label map mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLabelsFromConfigInvalid(t *testing.T) {
	tests := map[string]huggingface.Config{
		"negative key":    {ID2Label: map[string]string{"-1": "O"}},
		"non-numeric key": {ID2Label: map[string]string{"O": "0"}},
		"colliding keys":  {ID2Label: map[string]string{"1": "O", "01": "B-PER"}},
		"empty label":     {ID2Label: map[string]string{"0": ""}},
		"duplicate index": {Label2ID: map[string]int{"A": 0, "B": 0}},
	}

	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LabelsFromConfig(&cfg); !errors.Is(err, ErrInvalidLabelMap) {
				t.Fatalf("expected ErrInvalidLabelMap, got %v", err)
			}
		})
	}
}

// The written file always satisfies the label map invariant: an object of
// non-negative integer keys and non-empty labels.
func TestLabelMapFileInvariant(t *testing.T) {
	id2label := map[string]string{}
	for i := range 40 {
		id2label[strconv.Itoa(i)] = "L" + strconv.Itoa(i*7%13)
	}

	labels, err := LabelsFromConfig(&huggingface.Config{ID2Label: id2label})
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), LabelMapFile)
	if err := labels.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	var raw map[string]string
	b, err := json.Marshal(labels)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	for k, v := range raw {
		if n, err := strconv.Atoi(k); err != nil || n < 0 || v == "" {
			t.Errorf("invalid entry %q: %q", k, v)
		}
	}

	read, err := ReadLabelMap(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(labels.Labels(), read.Labels()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if read.Len() != 40 {
		t.Errorf("Len = %d, want 40", read.Len())
	}
}

func TestReadLabelMapInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"array":      `["O", "B-PER"]`,
		"empty":      `{}`,
		"bad key":    `{"x": "O"}`,
		"not string": `{"0": 1}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), LabelMapFile)
			writeFile(t, path, []byte(content))

			if _, err := ReadLabelMap(path); !errors.Is(err, ErrInvalidLabelMap) {
				t.Fatalf("expected ErrInvalidLabelMap, got %v", err)
			}
		})
	}
}
