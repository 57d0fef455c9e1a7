package shader

import (
	"fmt"
	"io/fs"
)

// stageSource is one compiled stage of a variant: the processed WGSL, its entry point, and the
// block and sampler annotations it declared.
type stageSource struct {
	stage        Stage
	path         string
	source       string
	entryPoint   string
	declarations []Annotation
}

// SourcePath returns the file name of a family's stage source, e.g. "forward.vert.wgsl".
//
// Parameters:
//   - family: the shader family name
//   - stage: StageVertex or StageFragment
//
// Returns:
//   - string: the file name relative to the shader directory
func SourcePath(family string, stage Stage) string {
	switch stage {
	case StageVertex:
		return family + ".vert.wgsl"
	case StageFragment:
		return family + ".frag.wgsl"
	default:
		return ""
	}
}

// readStage reads the raw source of one stage.
func readStage(fsys fs.FS, family string, stage Stage) (string, error) {
	path := SourcePath(family, stage)
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return "", &AssetLoadError{Path: path, Err: err}
	}
	return string(data), nil
}

// buildStage injects the feature defines after the first line of raw, runs the pre-processor,
// finds the stage entry point and validates the result.
func buildStage(pp PreProcessor, v Validator, family string, stage Stage, raw string, mask FeatureMask) (stageSource, error) {
	fail := func(log string, err error) (stageSource, error) {
		return stageSource{}, &CompileError{Family: family, Stage: stage, Features: mask, Log: log, Err: err}
	}

	processed, err := pp.Process(InjectDefines(raw, mask.Defines()))
	if err != nil {
		return fail(err.Error(), err)
	}
	entry := parseEntryPoint(processed, stage)
	if entry == "" {
		return fail(fmt.Sprintf("no @%s entry point", stage), ErrNoEntryPoint)
	}
	if v != nil {
		if err := v.Validate(stage, processed); err != nil {
			return fail(err.Error(), err)
		}
	}
	return stageSource{
		stage:        stage,
		path:         SourcePath(family, stage),
		source:       processed,
		entryPoint:   entry,
		declarations: append([]Annotation(nil), pp.Declarations()...),
	}, nil
}
