package onnx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendValueInfo(b []byte, num protowire.Number, name string) []byte {
	var vi []byte
	vi = protowire.AppendTag(vi, 1, protowire.BytesType)
	vi = protowire.AppendString(vi, name)
	// type field, skipped by the reader
	vi = protowire.AppendTag(vi, 2, protowire.BytesType)
	vi = protowire.AppendBytes(vi, []byte{0x0a, 0x02, 0x08, 0x07})

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, vi)
}

func encodeModel(opset int64, inputs, outputs []string, initializer int) []byte {
	var graph []byte
	graph = protowire.AppendTag(graph, 1, protowire.BytesType) // node
	graph = protowire.AppendBytes(graph, []byte("gather"))
	graph = protowire.AppendTag(graph, graphName, protowire.BytesType)
	graph = protowire.AppendString(graph, "torch_jit")
	graph = protowire.AppendTag(graph, 5, protowire.BytesType) // initializer
	graph = protowire.AppendBytes(graph, bytes.Repeat([]byte{0xab}, initializer))
	for _, in := range inputs {
		graph = appendValueInfo(graph, graphInput, in)
	}
	for _, out := range outputs {
		graph = appendValueInfo(graph, graphOutput, out)
	}

	var opsetImport []byte
	opsetImport = protowire.AppendTag(opsetImport, 1, protowire.BytesType)
	opsetImport = protowire.AppendString(opsetImport, "")
	opsetImport = protowire.AppendTag(opsetImport, 2, protowire.VarintType)
	opsetImport = protowire.AppendVarint(opsetImport, uint64(opset))

	var m []byte
	m = protowire.AppendTag(m, modelIRVersion, protowire.VarintType)
	m = protowire.AppendVarint(m, 7)
	m = protowire.AppendTag(m, modelProducerName, protowire.BytesType)
	m = protowire.AppendString(m, "pytorch")
	m = protowire.AppendTag(m, modelProducerVersion, protowire.BytesType)
	m = protowire.AppendString(m, "2.1.0")
	m = protowire.AppendTag(m, 5, protowire.VarintType) // model_version
	m = protowire.AppendVarint(m, 0)
	m = protowire.AppendTag(m, modelGraph, protowire.BytesType)
	m = protowire.AppendBytes(m, graph)
	m = protowire.AppendTag(m, modelOpsetImport, protowire.BytesType)
	m = protowire.AppendBytes(m, opsetImport)
	return m
}

func TestReadHeader(t *testing.T) {
	inputs := []string{InputIDs, AttentionMask, TokenTypeIDs}
	data := encodeModel(14, inputs, []string{OutputLogits}, 256<<10)

	h, err := ReadHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	want := &Header{
		IRVersion:       7,
		ProducerName:    "pytorch",
		ProducerVersion: "2.1.0",
		Opsets:          []OpsetImport{{Domain: "", Version: 14}},
		GraphName:       "torch_jit",
		Inputs:          inputs,
		Outputs:         []string{OutputLogits},
	}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	for _, domain := range []string{"", "ai.onnx"} {
		if v, ok := h.Opset(domain); !ok || v != 14 {
			t.Errorf("Opset(%q) = %d, %v", domain, v, ok)
		}
	}
	if _, ok := h.Opset("com.microsoft"); ok {
		t.Error("unexpected com.microsoft opset")
	}
}

func TestReadHeaderInvalid(t *testing.T) {
	valid := encodeModel(14, []string{InputIDs}, []string{OutputLogits}, 1024)

	var noGraph []byte
	noGraph = protowire.AppendTag(noGraph, modelIRVersion, protowire.VarintType)
	noGraph = protowire.AppendVarint(noGraph, 7)

	tests := map[string][]byte{
		"empty":            nil,
		"no graph":         noGraph,
		"truncated":        valid[:len(valid)/2],
		"truncated varint": {0x08, 0xff},
		"group wire type":  protowire.AppendTag(nil, 9, protowire.StartGroupType),
		"text":             []byte("this is not a model"),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(data))
			if !errors.Is(err, ErrInvalidModel) {
				t.Fatalf("expected ErrInvalidModel, got %v", err)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), ModelFile)
	if err := os.WriteFile(path, encodeModel(11, []string{InputIDs, AttentionMask}, []string{OutputLastState}, 10), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := h.Opset(""); v != 11 {
		t.Errorf("opset = %d, want 11", v)
	}

	if _, err := Inspect(filepath.Join(t.TempDir(), "missing.onnx")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
