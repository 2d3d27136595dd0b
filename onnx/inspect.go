// inspect.go - reads the header of a serialized ONNX ModelProto
//
// The model is streamed field by field. Initializers and node lists are
// discarded without being buffered, so inspecting a multi-gigabyte graph
// only holds the small messages in memory.
package onnx

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrInvalidModel = errors.New("invalid onnx model")

// maxInlineField bounds strings and small messages read into memory.
const maxInlineField = 1 << 20

// ModelProto field numbers.
const (
	modelIRVersion       protowire.Number = 1
	modelProducerName    protowire.Number = 2
	modelProducerVersion protowire.Number = 3
	modelGraph           protowire.Number = 7
	modelOpsetImport     protowire.Number = 8
)

// GraphProto field numbers.
const (
	graphName   protowire.Number = 2
	graphInput  protowire.Number = 11
	graphOutput protowire.Number = 12
)

// OpsetImport is one entry of ModelProto.opset_import.
type OpsetImport struct {
	Domain  string
	Version int64
}

// Header is the metadata of an ONNX model.
type Header struct {
	IRVersion       int64
	ProducerName    string
	ProducerVersion string
	Opsets          []OpsetImport
	GraphName       string
	Inputs          []string
	Outputs         []string
}

// Opset returns the imported version of domain. The default domain is
// accepted as either "" or "ai.onnx".
func (h *Header) Opset(domain string) (int64, bool) {
	for _, o := range h.Opsets {
		if o.Domain == domain || (isDefaultDomain(domain) && isDefaultDomain(o.Domain)) {
			return o.Version, true
		}
	}
	return 0, false
}

func isDefaultDomain(d string) bool {
	return d == "" || d == "ai.onnx"
}

// Inspect reads the header of the model file at path.
func Inspect(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// ReadHeader decodes a ModelProto from r.
func ReadHeader(r io.Reader) (*Header, error) {
	var h Header
	var sawGraph bool

	w := newWireReader(r)
	for {
		num, typ, err := w.tag()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}

		switch {
		case num == modelIRVersion && typ == protowire.VarintType:
			v, err := w.varint()
			if err != nil {
				return nil, err
			}
			h.IRVersion = int64(v)
		case num == modelProducerName && typ == protowire.BytesType:
			if h.ProducerName, err = w.str(); err != nil {
				return nil, err
			}
		case num == modelProducerVersion && typ == protowire.BytesType:
			if h.ProducerVersion, err = w.str(); err != nil {
				return nil, err
			}
		case num == modelOpsetImport && typ == protowire.BytesType:
			b, err := w.bytes()
			if err != nil {
				return nil, err
			}
			o, err := parseOpsetImport(b)
			if err != nil {
				return nil, err
			}
			h.Opsets = append(h.Opsets, o)
		case num == modelGraph && typ == protowire.BytesType:
			n, err := w.varint()
			if err != nil {
				return nil, err
			}
			if err := readGraph(w.sub(n), &h); err != nil {
				return nil, fmt.Errorf("graph: %w", err)
			}
			sawGraph = true
		default:
			if err := w.skip(typ); err != nil {
				return nil, err
			}
		}
	}

	if !sawGraph {
		return nil, fmt.Errorf("%w: no graph", ErrInvalidModel)
	}
	return &h, nil
}

func readGraph(w *wireReader, h *Header) error {
	for {
		num, typ, err := w.tag()
		if errors.Is(err, io.EOF) {
			return w.drained()
		} else if err != nil {
			return err
		}

		switch {
		case num == graphName && typ == protowire.BytesType:
			if h.GraphName, err = w.str(); err != nil {
				return err
			}
		case (num == graphInput || num == graphOutput) && typ == protowire.BytesType:
			b, err := w.bytes()
			if err != nil {
				return err
			}
			name, err := parseValueInfoName(b)
			if err != nil {
				return err
			}
			if num == graphInput {
				h.Inputs = append(h.Inputs, name)
			} else {
				h.Outputs = append(h.Outputs, name)
			}
		default:
			if err := w.skip(typ); err != nil {
				return err
			}
		}
	}
}

func parseOpsetImport(b []byte) (OpsetImport, error) {
	var o OpsetImport
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			if n < 0 {
				return protowire.ParseError(n)
			}
			o.Domain = s
		case num == 2 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return protowire.ParseError(n)
			}
			o.Version = int64(x)
		}
		return nil
	})
	return o, err
}

func parseValueInfoName(b []byte) (string, error) {
	var name string
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(v)
			if n < 0 {
				return protowire.ParseError(n)
			}
			name = s
		}
		return nil
	})
	return name, err
}

// eachField walks an in-memory message. v starts at the field value.
func eachField(b []byte, fn func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidModel, protowire.ParseError(n))
		}
		b = b[n:]

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidModel, protowire.ParseError(m))
		}
		if err := fn(num, typ, b[:m]); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
		b = b[m:]
	}
	return nil
}

// wireReader decodes protobuf wire format from a stream.
type wireReader struct {
	r *bufio.Reader
	// limit is the remaining length of a nested message, or -1.
	limit int64
}

func newWireReader(r io.Reader) *wireReader {
	return &wireReader{r: bufio.NewReaderSize(r, 64<<10), limit: -1}
}

// sub returns a reader over the next n bytes.
func (w *wireReader) sub(n uint64) *wireReader {
	return &wireReader{r: w.r, limit: int64(n)}
}

func (w *wireReader) drained() error {
	if w.limit > 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidModel, w.limit)
	}
	return nil
}

func (w *wireReader) consume(n int64) error {
	if w.limit < 0 {
		return nil
	}
	if n > w.limit {
		return fmt.Errorf("%w: field exceeds enclosing message", ErrInvalidModel)
	}
	w.limit -= n
	return nil
}

func (w *wireReader) tag() (protowire.Number, protowire.Type, error) {
	if w.limit == 0 {
		return 0, 0, io.EOF
	}

	v, err := w.varint()
	if err != nil {
		return 0, 0, err
	}

	num, typ := protowire.DecodeTag(v)
	if !num.IsValid() {
		return 0, 0, fmt.Errorf("%w: invalid field number %d", ErrInvalidModel, num)
	}
	return num, typ, nil
}

func (w *wireReader) varint() (uint64, error) {
	cr := &countingByteReader{r: w.r}
	v, err := binary.ReadUvarint(cr)
	if err != nil {
		if errors.Is(err, io.EOF) && cr.n == 0 && w.limit < 0 {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidModel, unexpected(err))
	}
	return v, w.consume(cr.n)
}

func (w *wireReader) bytes() ([]byte, error) {
	n, err := w.varint()
	if err != nil {
		return nil, err
	}
	if n > maxInlineField {
		return nil, fmt.Errorf("%w: field of %d bytes", ErrInvalidModel, n)
	}
	if err := w.consume(int64(n)); err != nil {
		return nil, err
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(w.r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, unexpected(err))
	}
	return b, nil
}

func (w *wireReader) str() (string, error) {
	b, err := w.bytes()
	return string(b), err
}

func (w *wireReader) discard(n uint64) error {
	if err := w.consume(int64(n)); err != nil {
		return err
	}
	for n > 0 {
		chunk := min(n, 1<<30)
		if _, err := w.r.Discard(int(chunk)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidModel, unexpected(err))
		}
		n -= chunk
	}
	return nil
}

func (w *wireReader) skip(typ protowire.Type) error {
	switch typ {
	case protowire.VarintType:
		_, err := w.varint()
		return err
	case protowire.Fixed32Type:
		return w.discard(4)
	case protowire.Fixed64Type:
		return w.discard(8)
	case protowire.BytesType:
		n, err := w.varint()
		if err != nil {
			return err
		}
		return w.discard(n)
	default:
		return fmt.Errorf("%w: unsupported wire type %d", ErrInvalidModel, typ)
	}
}

type countingByteReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
