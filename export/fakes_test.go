package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/7blacky7/hf2onnx/huggingface"
	"github.com/7blacky7/hf2onnx/onnx"
)

// encodeModel returns a minimal ModelProto with the given default opset and
// graph inputs and outputs.
func encodeModel(opset int64, inputs, outputs []string) []byte {
	valueInfo := func(b []byte, num protowire.Number, name string) []byte {
		var vi []byte
		vi = protowire.AppendTag(vi, 1, protowire.BytesType)
		vi = protowire.AppendString(vi, name)
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendBytes(b, vi)
	}

	var graph []byte
	for _, in := range inputs {
		graph = valueInfo(graph, 11, in)
	}
	for _, out := range outputs {
		graph = valueInfo(graph, 12, out)
	}

	var op []byte
	op = protowire.AppendTag(op, 2, protowire.VarintType)
	op = protowire.AppendVarint(op, uint64(opset))

	var m []byte
	m = protowire.AppendTag(m, 1, protowire.VarintType)
	m = protowire.AppendVarint(m, 8)
	m = protowire.AppendTag(m, 7, protowire.BytesType)
	m = protowire.AppendBytes(m, graph)
	m = protowire.AppendTag(m, 8, protowire.BytesType)
	return protowire.AppendBytes(m, op)
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

const nerConfig = `{
  "model_type": "bert",
  "architectures": ["BertForTokenClassification"],
  "id2label": {"0": "O", "1": "B-MISC", "2": "I-MISC", "3": "B-PER", "4": "I-PER", "5": "B-ORG", "6": "I-ORG", "7": "B-LOC", "8": "I-LOC", "10": "X", "9": "Y"},
  "type_vocab_size": 2
}`

const embeddingConfig = `{
  "model_type": "bert",
  "architectures": ["BertModel"],
  "type_vocab_size": 2
}`

// fakeRegistry serves models from snapshot directories it creates itself.
type fakeRegistry struct {
	t     *testing.T
	root  string
	model map[string]string // id -> config.json

	mu    sync.Mutex
	calls []string

	configErr  error
	resolveErr error
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	return &fakeRegistry{
		t:    t,
		root: t.TempDir(),
		model: map[string]string{
			"dslim/bert-base-NER":                    nerConfig,
			"sentence-transformers/all-MiniLM-L6-v2": embeddingConfig,
		},
	}
}

func (r *fakeRegistry) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRegistry) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRegistry) ResolveConfig(_ context.Context, id string) (*huggingface.Config, error) {
	r.record("config " + id)
	if r.configErr != nil {
		return nil, r.configErr
	}
	data, ok := r.model[id]
	if !ok {
		return nil, huggingface.ErrModelNotFound
	}
	return huggingface.ParseConfig([]byte(data))
}

func (r *fakeRegistry) Resolve(_ context.Context, id string) (*huggingface.Snapshot, error) {
	r.record("resolve " + id)
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	data, ok := r.model[id]
	if !ok {
		return nil, &huggingface.HuggingFaceError{Op: "resolve", ModelID: id, Err: huggingface.ErrModelNotFound}
	}

	dir := filepath.Join(r.root, filepath.FromSlash(id))
	writeFile(r.t, filepath.Join(dir, huggingface.ConfigFile), []byte(data))
	writeFile(r.t, filepath.Join(dir, "model.safetensors"), []byte("weights"))
	writeFile(r.t, filepath.Join(dir, "vocab.txt"), []byte("[PAD]\n[UNK]\n"))
	writeFile(r.t, filepath.Join(dir, "tokenizer_config.json"), []byte(`{}`))

	cfg, err := huggingface.LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	tok, err := huggingface.LoadTokenizer(dir)
	if err != nil {
		return nil, err
	}
	return &huggingface.Snapshot{ID: id, Dir: dir, Config: cfg, Weights: []string{"model.safetensors"}, Tokenizer: tok}, nil
}

// fakeExporter writes a model.onnx whose header reflects the request.
type fakeExporter struct {
	t *testing.T

	mu       sync.Mutex
	requests []onnx.Request
	features []string

	err error
	// opsetOverride makes the written graph lie about its opset.
	opsetOverride int64
	// graphInputs replaces the inputs derived from the export config.
	graphInputs []string
}

func (e *fakeExporter) ExportFeatureExtraction(_ context.Context, modelDir, outDir string) (*onnx.Result, error) {
	e.mu.Lock()
	e.features = append(e.features, modelDir)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}

	output := filepath.Join(outDir, onnx.ModelFile)
	writeFile(e.t, output, encodeModel(14, []string{onnx.InputIDs, onnx.AttentionMask, onnx.TokenTypeIDs}, []string{onnx.OutputLastState}))
	writeFile(e.t, filepath.Join(outDir, huggingface.ConfigFile), []byte(embeddingConfig))
	return &onnx.Result{Output: output}, nil
}

func (e *fakeExporter) Export(_ context.Context, req onnx.Request) (*onnx.Result, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}

	opset := int64(req.Opset)
	if e.opsetOverride != 0 {
		opset = e.opsetOverride
	}
	inputs := req.Config.Inputs(2)
	if e.graphInputs != nil {
		inputs = e.graphInputs
	}
	writeFile(e.t, req.Output, encodeModel(opset, inputs, req.Config.Outputs))
	return &onnx.Result{Output: req.Output}, nil
}

var errBoom = errors.New("boom")
