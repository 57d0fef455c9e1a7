package shader

import (
	"strings"

	"github.com/gogpu/naga"
)

// Validator checks a processed WGSL stage before it is handed to the backend.
type Validator interface {
	// Validate compiles one stage.
	//
	// Parameters:
	//   - stage: the stage the source belongs to
	//   - source: the processed WGSL source
	//
	// Returns:
	//   - error: the compiler diagnostic, or nil if the stage is valid
	Validate(stage Stage, source string) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(stage Stage, source string) error

func (f ValidatorFunc) Validate(stage Stage, source string) error {
	return f(stage, source)
}

// nagaValidator compiles each stage to SPIR-V with naga and discards the output.
type nagaValidator struct{}

// NewNagaValidator returns a Validator backed by the pure Go naga WGSL compiler. Constructs naga
// reports as unimplemented are accepted, leaving the final word to the device compiler.
//
// Returns:
//   - Validator: the naga validator
func NewNagaValidator() Validator {
	return nagaValidator{}
}

func (nagaValidator) Validate(_ Stage, source string) error {
	if _, err := naga.Compile(source); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			return nil
		}
		return err
	}
	return nil
}
