package gpu

import (
	"github.com/gogpu/naga"
)

// ValidateWGSL compiles code on the host with naga and discards the output.
// It catches parse and type errors in edited kernels before the driver sees them.
func ValidateWGSL(label, code string) error {
	if _, err := naga.Compile(code); err != nil {
		return &CompileError{Label: label, Err: err}
	}
	return nil
}
