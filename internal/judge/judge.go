package judge

import (
	"context"
	"errors"
)

// Sample is one evaluation request: a generated (and optionally source)
// image plus the attribute or edit under audit.
type Sample struct {
	CaseID          string `json:"case_id"`
	AttributeType   string `json:"attribute_type"`
	AttributeValue  string `json:"attribute_value"`
	AttributeMarker string `json:"attribute_marker,omitempty"`
	Instruction     string `json:"instruction,omitempty"`
	ImagePath       string `json:"image_path,omitempty"`
	SourceImagePath string `json:"source_image_path,omitempty"`
	ImageData       string `json:"image_data,omitempty"`
	SourceImageData string `json:"source_image_data,omitempty"`
}

// Response is the raw free-text opinion returned by a judge backend.
type Response struct {
	Text string
}

// Judge inspects a sample and returns a free-text opinion about an
// attribute's presence. Implementations own their transport, retries and
// timeouts; callers treat any returned error as an unavailable judge and
// degrade that vote, never propagate it.
type Judge interface {
	ID() string
	Weight() float64
	Enabled() bool
	Evaluate(ctx context.Context, sample Sample) (Response, error)
}

// ErrDisabled signals a backend without usable credentials.
var ErrDisabled = errors.New("judge backend disabled")
