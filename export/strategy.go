package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/7blacky7/hf2onnx/huggingface"
	"github.com/7blacky7/hf2onnx/onnx"
	"github.com/7blacky7/hf2onnx/store"
	"github.com/7blacky7/hf2onnx/types/model"
)

// TokenizerDir is the tokenizer subdirectory of a token classification
// bundle.
const TokenizerDir = "tokenizer"

// Strategy exports one model into a bundle directory. The set of
// strategies is closed: one per model.Mode.
type Strategy interface {
	Mode() model.Mode
	export(ctx context.Context, id model.Identifier, location string) (*Bundle, error)
}

func strategyFor(mode model.Mode, registry Registry, exporter GraphExporter, opset int) (Strategy, error) {
	switch mode {
	case model.ModeFeatureExtraction:
		return &featureExtraction{registry: registry, exporter: exporter}, nil
	case model.ModeTokenClassification:
		return &tokenClassification{registry: registry, exporter: exporter, opset: opset}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}
}

// featureExtraction lets the exporter load and trace the model in one step
// and writes graph and tokenizer flat into the bundle.
type featureExtraction struct {
	registry Registry
	exporter GraphExporter
}

func (s *featureExtraction) Mode() model.Mode { return model.ModeFeatureExtraction }

func (s *featureExtraction) export(ctx context.Context, id model.Identifier, location string) (*Bundle, error) {
	mode := s.Mode()

	snap, err := s.registry.Resolve(ctx, id.String())
	if err != nil {
		return nil, failed(mode, id, "model resolution failed", err)
	}

	if _, err := s.exporter.ExportFeatureExtraction(ctx, snap.Dir, location); err != nil {
		return nil, failed(mode, id, "graph export", err)
	}

	if err := saveTokenizer(snap, location); err != nil {
		return nil, failed(mode, id, "tokenizer", err)
	}

	header, err := onnx.Inspect(filepath.Join(location, onnx.ModelFile))
	if err != nil {
		return nil, failed(mode, id, "graph verification", err)
	}
	if len(header.Inputs) == 0 {
		return nil, failed(mode, id, "graph verification", fmt.Errorf("graph has no inputs"))
	}

	return newBundle(id, mode, location, header, nil)
}

// tokenClassification writes the label map before touching the weights,
// then exports the graph explicitly at a fixed opset.
type tokenClassification struct {
	registry Registry
	exporter GraphExporter
	opset    int
}

func (s *tokenClassification) Mode() model.Mode { return model.ModeTokenClassification }

func (s *tokenClassification) export(ctx context.Context, id model.Identifier, location string) (*Bundle, error) {
	mode := s.Mode()

	cfg, err := s.registry.ResolveConfig(ctx, id.String())
	if err != nil {
		return nil, failed(mode, id, "config resolution failed", err)
	}

	labels, err := LabelsFromConfig(cfg)
	if err != nil {
		return nil, failed(mode, id, "label map", err)
	}
	if err := labels.WriteFile(filepath.Join(location, LabelMapFile)); err != nil {
		return nil, failed(mode, id, "label map", err)
	}
	slog.Debug("wrote label map", "model", id, "labels", labels.Len())

	exportCfg, err := onnx.ConfigFor(cfg.NormalizedModelType(), onnx.FeatureTokenClassification)
	if err != nil {
		return nil, err
	}
	if s.opset < exportCfg.MinOpset {
		return nil, fmt.Errorf("%w: %s needs opset %d or newer, requested %d", ErrUnsupportedArchitecture, exportCfg.ModelType, exportCfg.MinOpset, s.opset)
	}

	snap, err := s.registry.Resolve(ctx, id.String())
	if err != nil {
		return nil, failed(mode, id, "model resolution failed", err)
	}

	tokenizerDir, err := store.Subdir(location, TokenizerDir)
	if err != nil {
		return nil, failed(mode, id, "tokenizer", err)
	}
	if err := saveTokenizer(snap, tokenizerDir); err != nil {
		return nil, failed(mode, id, "tokenizer", err)
	}

	output := filepath.Join(location, onnx.ModelFile)
	if _, err := s.exporter.Export(ctx, onnx.Request{
		ModelDir: snap.Dir,
		Output:   output,
		Opset:    s.opset,
		Config:   exportCfg,
	}); err != nil {
		return nil, failed(mode, id, "graph export", err)
	}

	header, err := onnx.Inspect(output)
	if err != nil {
		return nil, failed(mode, id, "graph verification", err)
	}
	if err := checkGraph(header, int64(s.opset), exportCfg.Inputs(snap.Config.TypeVocabSize)); err != nil {
		return nil, failed(mode, id, "graph verification", err)
	}

	return newBundle(id, mode, location, header, labels)
}

func saveTokenizer(snap *huggingface.Snapshot, dir string) error {
	if snap.Tokenizer == nil {
		return huggingface.ErrNoTokenizer
	}
	_, err := snap.Tokenizer.Save(dir)
	return err
}

// checkGraph compares the exported graph with what was requested.
func checkGraph(h *onnx.Header, opset int64, inputs []string) error {
	got, ok := h.Opset("")
	if !ok {
		return fmt.Errorf("no default domain opset import")
	}
	if got != opset {
		return fmt.Errorf("graph targets opset %d, requested %d", got, opset)
	}
	if !slices.Equal(h.Inputs, inputs) {
		return fmt.Errorf("graph inputs %v, expected %v", h.Inputs, inputs)
	}
	return nil
}
