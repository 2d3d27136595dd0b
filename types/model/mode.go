package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownMode is returned for mode values outside the two export modes.
var ErrUnknownMode = errors.New("unknown export mode")

// Mode selects the export strategy. The zero value is not a mode.
type Mode int

const (
	ModeFeatureExtraction Mode = iota + 1
	ModeTokenClassification
)

// Task names as used by transformers and optimum.
const (
	TaskFeatureExtraction   = "feature-extraction"
	TaskTokenClassification = "token-classification"
)

var modeNames = map[string]Mode{
	"feature":               ModeFeatureExtraction,
	TaskFeatureExtraction:   ModeFeatureExtraction,
	"token":                 ModeTokenClassification,
	TaskTokenClassification: ModeTokenClassification,
}

// Modes lists every valid mode.
func Modes() []Mode {
	return []Mode{ModeFeatureExtraction, ModeTokenClassification}
}

// ParseMode accepts the short CLI names ("feature", "token") and the task
// names, case-insensitively.
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if m, ok := modeNames[key]; ok {
		return m, nil
	}

	if suggestion := closestMode(key); suggestion != "" {
		return 0, fmt.Errorf("%w %q, did you mean %q?", ErrUnknownMode, s, suggestion)
	}
	return 0, fmt.Errorf("%w %q (expected feature or token)", ErrUnknownMode, s)
}

func closestMode(s string) string {
	if s == "" {
		return ""
	}

	best, score := "", 4
	for _, name := range []string{"feature", "token", TaskFeatureExtraction, TaskTokenClassification} {
		if d := levenshtein.ComputeDistance(s, name); d < score {
			best, score = name, d
		}
	}
	return best
}

// Valid reports whether m is one of the export modes.
func (m Mode) Valid() bool {
	return m == ModeFeatureExtraction || m == ModeTokenClassification
}

// Task returns the transformers task name for m.
func (m Mode) Task() string {
	switch m {
	case ModeFeatureExtraction:
		return TaskFeatureExtraction
	case ModeTokenClassification:
		return TaskTokenClassification
	default:
		return ""
	}
}

// Short returns the CLI name for m.
func (m Mode) Short() string {
	switch m {
	case ModeFeatureExtraction:
		return "feature"
	case ModeTokenClassification:
		return "token"
	default:
		return ""
	}
}

func (m Mode) String() string {
	if t := m.Task(); t != "" {
		return t
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.Short()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
