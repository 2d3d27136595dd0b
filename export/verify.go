package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/7blacky7/hf2onnx/huggingface"
	"github.com/7blacky7/hf2onnx/onnx"
	"github.com/7blacky7/hf2onnx/store"
	"github.com/7blacky7/hf2onnx/types/model"
)

// Verify checks that dir holds a complete bundle of the given mode: the
// graph parses, tokenizer files are where the mode puts them and, for token
// classification, label_map.json satisfies the label map invariant.
func Verify(dir string, mode model.Mode) (*Bundle, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", dir)
	}

	files, err := store.Files(dir)
	if err != nil {
		return nil, err
	}

	var missing []string
	if !slices.Contains(files, onnx.ModelFile) {
		missing = append(missing, onnx.ModelFile)
	}

	tokenizerPrefix := ""
	if mode == model.ModeTokenClassification {
		tokenizerPrefix = TokenizerDir + "/"
		if !slices.Contains(files, LabelMapFile) {
			missing = append(missing, LabelMapFile)
		}
	}
	if !slices.ContainsFunc(files, func(f string) bool {
		name, ok := strings.CutPrefix(f, tokenizerPrefix)
		return ok && huggingface.IsTokenizerFile(name)
	}) {
		missing = append(missing, tokenizerPrefix+"<tokenizer files>")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteBundle, strings.Join(missing, ", "))
	}

	header, err := onnx.Inspect(filepath.Join(dir, onnx.ModelFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteBundle, err)
	}
	if _, ok := header.Opset(""); !ok {
		return nil, fmt.Errorf("%w: %s has no default domain opset", ErrIncompleteBundle, onnx.ModelFile)
	}

	var labels *LabelMap
	if mode == model.ModeTokenClassification {
		if labels, err = ReadLabelMap(filepath.Join(dir, LabelMapFile)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", ErrIncompleteBundle, err)
			}
			return nil, err
		}
		if !slices.Contains(header.Outputs, onnx.OutputLogits) {
			return nil, fmt.Errorf("%w: graph outputs %v have no %s", ErrIncompleteBundle, header.Outputs, onnx.OutputLogits)
		}
	}

	size, err := store.Size(dir)
	if err != nil {
		return nil, err
	}

	return &Bundle{Mode: mode, Dir: dir, Files: files, Size: size, Graph: header, Labels: labels}, nil
}
