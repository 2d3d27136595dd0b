// tokenizer.go - tokenizer files of a snapshot and how they are saved
package huggingface

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// TokenizerFiles are the files AutoTokenizer.save_pretrained may write.
var TokenizerFiles = []string{
	"tokenizer.json",
	"tokenizer_config.json",
	"special_tokens_map.json",
	"added_tokens.json",
	"vocab.txt",
	"vocab.json",
	"merges.txt",
	"spiece.model",
	"sentencepiece.bpe.model",
	"tokenizer.model",
}

var ErrNoTokenizer = errors.New("no tokenizer files")

// IsTokenizerFile reports whether name is one of TokenizerFiles.
func IsTokenizerFile(name string) bool {
	return slices.Contains(TokenizerFiles, name)
}

// Tokenizer is the set of tokenizer files present in a snapshot directory.
type Tokenizer struct {
	Dir   string
	Files []string
}

// LoadTokenizer collects the tokenizer files found in dir.
func LoadTokenizer(dir string) (*Tokenizer, error) {
	t := &Tokenizer{Dir: dir}
	for _, name := range TokenizerFiles {
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && !fi.IsDir() {
			t.Files = append(t.Files, name)
		}
	}
	if len(t.Files) == 0 {
		return nil, &HuggingFaceError{Op: "tokenizer", Err: fmt.Errorf("%w in %s", ErrNoTokenizer, dir)}
	}
	return t, nil
}

// Save copies the tokenizer files into dir, creating it if needed, and
// returns the written paths. Existing files are overwritten.
func (t *Tokenizer) Save(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tokenizer directory: %w", err)
	}

	written := make([]string, 0, len(t.Files))
	for _, name := range t.Files {
		dst := filepath.Join(dir, name)
		if err := copyFile(filepath.Join(t.Dir, name), dst); err != nil {
			return written, &HuggingFaceError{Op: "tokenizer", Err: fmt.Errorf("save %s: %w", name, err)}
		}
		written = append(written, dst)
	}
	return written, nil
}

func copyFile(src, dst string) error {
	if same, err := sameFile(src, dst); err != nil || same {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
