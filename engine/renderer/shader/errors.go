package shader

import (
	"errors"
	"fmt"
)

// Stage identifies where a variant failed to build.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageLink
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageLink:
		return "link"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// ErrNoEntryPoint is wrapped by a CompileError when a processed stage declares no entry point for its stage.
var ErrNoEntryPoint = errors.New("no entry point")

// AssetLoadError reports a shader source that could not be read.
type AssetLoadError struct {
	Path string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load shader %s: %v", e.Path, e.Err)
}

func (e *AssetLoadError) Unwrap() error {
	return e.Err
}

// CompileError reports a variant whose stage failed to compile or whose program failed to link.
// Log carries the diagnostic text of the failing step.
type CompileError struct {
	Family   string
	Stage    Stage
	Features FeatureMask
	Log      string
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s %s [%s]: %s", e.Family, e.Stage, e.Features, e.Log)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
