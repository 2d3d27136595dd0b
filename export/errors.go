package export

import (
	"errors"

	"github.com/7blacky7/hf2onnx/onnx"
	"github.com/7blacky7/hf2onnx/types/model"
)

var (
	ErrInvalidIdentifier       = model.ErrInvalidIdentifier
	ErrUnknownMode             = model.ErrUnknownMode
	ErrUnsupportedArchitecture = onnx.ErrUnsupportedArchitecture
	ErrExportFailed            = errors.New("export failed")
	ErrIncompleteBundle        = errors.New("incomplete bundle")
)

// ExportError is returned for every strategy failure other than an
// unsupported architecture. It matches both ErrExportFailed and its cause.
type ExportError struct {
	Mode  model.Mode
	Model string
	// Stage names the step that failed, e.g. "model resolution failed".
	Stage string
	Cause error
}

func (e *ExportError) Error() string {
	msg := "export failed"
	if e.Model != "" {
		msg += " [" + e.Model + "]"
	}
	if e.Stage != "" {
		msg += ": " + e.Stage
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrExportFailed}
	}
	return []error{ErrExportFailed, e.Cause}
}

func failed(mode model.Mode, id model.Identifier, stage string, cause error) error {
	return &ExportError{Mode: mode, Model: id.String(), Stage: stage, Cause: cause}
}
