package export

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/hf2onnx/huggingface"
)

// LabelMapFile holds the classifier index to label mapping of a token
// classification bundle.
const LabelMapFile = "label_map.json"

// defaultNumLabels matches the transformers PretrainedConfig default.
const defaultNumLabels = 2

var ErrInvalidLabelMap = errors.New("invalid label map")

// LabelMap maps stringified class indices to label names. Keys are kept in
// ascending numeric order, also when serialized.
type LabelMap struct {
	labels *orderedmap.OrderedMap[string, string]
}

type indexedLabel struct {
	index int
	label string
}

func newLabelMap(entries []indexedLabel) *LabelMap {
	slices.SortFunc(entries, func(a, b indexedLabel) int {
		return cmp.Compare(a.index, b.index)
	})

	m := orderedmap.New[string, string](len(entries))
	for _, e := range entries {
		m.Set(strconv.Itoa(e.index), e.label)
	}
	return &LabelMap{labels: m}
}

// LabelsFromConfig builds the label map from id2label. Configs without
// id2label fall back to label2id, then to LABEL_0..LABEL_n-1 for num_labels.
func LabelsFromConfig(cfg *huggingface.Config) (*LabelMap, error) {
	switch {
	case len(cfg.ID2Label) > 0:
		return parseLabels(cfg.ID2Label)
	case len(cfg.Label2ID) > 0:
		id2label := make(map[string]string, len(cfg.Label2ID))
		for label, id := range cfg.Label2ID {
			key := strconv.Itoa(id)
			if _, ok := id2label[key]; ok {
				return nil, fmt.Errorf("%w: index %d assigned twice in label2id", ErrInvalidLabelMap, id)
			}
			id2label[key] = label
		}
		return parseLabels(id2label)
	}

	n := cfg.NumLabels
	if n <= 0 {
		n = defaultNumLabels
	}

	entries := make([]indexedLabel, n)
	for i := range entries {
		entries[i] = indexedLabel{i, fmt.Sprintf("LABEL_%d", i)}
	}
	return newLabelMap(entries), nil
}

// parseLabels reads id2label keys the way transformers does, with int(),
// so "01" and "1" name the same index. Two keys naming one index are an
// error.
func parseLabels(id2label map[string]string) (*LabelMap, error) {
	entries := make([]indexedLabel, 0, len(id2label))
	seen := make(map[int]string, len(id2label))
	for key, label := range id2label {
		index, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || index < 0 {
			return nil, fmt.Errorf("%w: key %q is not a non-negative integer", ErrInvalidLabelMap, key)
		}
		if other, ok := seen[index]; ok {
			a, b := min(key, other), max(key, other)
			return nil, fmt.Errorf("%w: keys %q and %q both name index %d", ErrInvalidLabelMap, a, b, index)
		}
		seen[index] = key
		if label == "" {
			return nil, fmt.Errorf("%w: empty label for index %d", ErrInvalidLabelMap, index)
		}
		entries = append(entries, indexedLabel{index, label})
	}
	return newLabelMap(entries), nil
}

// Len returns the number of labels.
func (l *LabelMap) Len() int {
	return l.labels.Len()
}

// Labels returns the label names in index order.
func (l *LabelMap) Labels() []string {
	labels := make([]string, 0, l.labels.Len())
	for pair := l.labels.Oldest(); pair != nil; pair = pair.Next() {
		labels = append(labels, pair.Value)
	}
	return labels
}

// Get returns the label of a class index.
func (l *LabelMap) Get(index int) (string, bool) {
	return l.labels.Get(strconv.Itoa(index))
}

func (l *LabelMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.labels)
}

// WriteFile writes the label map as JSON, replacing an existing file.
func (l *LabelMap) WriteFile(path string) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ReadLabelMap reads and validates a label_map.json.
func ReadLabelMap(path string) (*LabelMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var id2label map[string]string
	if err := json.Unmarshal(b, &id2label); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLabelMap, err)
	}
	if len(id2label) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidLabelMap)
	}
	return parseLabels(id2label)
}
