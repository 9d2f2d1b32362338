package inference

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/rootcause-ml/internal/encoder"
	"github.com/Brownie44l1/rootcause-ml/internal/preprocess"
)

// Sentinel errors of the prediction paths. Callers match them with errors.Is.
var (
	// ErrDecode means the uploaded payload is not an image.
	ErrDecode = preprocess.ErrDecode
	// ErrEncoderLookup means a categorical encoder is unavailable.
	ErrEncoderLookup = encoder.ErrNotFound
	// ErrInference means a model failed during its forward pass.
	ErrInference = errors.New("inference failed")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Field)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "Missing required field"}
}

func invalidField(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: "Invalid value for field (" + reason + ")"}
}
