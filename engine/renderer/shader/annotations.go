// annotations.go defines the annotation types and parser for the Oxy WGSL pre-processor.
// Annotations are single-line WGSL comments prefixed with @oxy: that inject the uniform block
// and sampler declarations of the fixed binding table, so shader families never spell out
// group or binding numbers themselves.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL struct of a uniform block without declaring a binding.
	//
	// Syntax: //@oxy:include <block_name>
	//
	// Example: //@oxy:include shadow_data
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBlock injects the WGSL struct of a uniform block followed by its
	// @group(0) @binding(slot) var<uniform> declaration. The variable takes the block name.
	//
	// Syntax: //@oxy:block <block_name>
	//
	// Example: //@oxy:block camera_data
	AnnotationTypeBlock AnnotationType = "block"

	// AnnotationTypeSampler declares a texture and its sampler at the bindings of a texture unit:
	// the texture at @group(1) @binding(2u), the sampler "<name>_sampler" at @binding(2u+1).
	//
	// Syntax: //@oxy:sampler <sampler_name>
	//
	// Example: //@oxy:sampler _MainTexture
	AnnotationTypeSampler AnnotationType = "sampler"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Name is the uniform block or sampler the annotation refers to.
	Name string

	// Line is the 1-based line number in the source where this annotation was found.
	Line int

	// Group is the @group index the annotation binds to. Zero for include annotations.
	Group int

	// Binding is the first @binding index the annotation declares. Zero for include annotations.
	Binding int
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix. Returns
// a populated Annotation for valid annotations, or an error describing the problem for
// malformed annotations with correct prefix but invalid syntax or unknown arguments.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	comment, ok := strings.CutPrefix(trimmed, "//")
	if !ok {
		return nil, nil
	}
	_, after, ok := strings.Cut(strings.TrimSpace(comment), annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude, AnnotationTypeBlock:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy %s annotation requires exactly one argument", lineNum, args[0])
		}
		b, ok := uniform.BlockByName(args[1])
		if !ok {
			return nil, fmt.Errorf("line %d: unknown uniform block %q in @oxy %s annotation", lineNum, args[1], args[0])
		}
		a := &Annotation{Type: AnnotationType(args[0]), Name: b.Name, Line: lineNum}
		if a.Type == AnnotationTypeBlock {
			a.Group = uniform.UniformGroup
			a.Binding = b.Slot
		}
		return a, nil
	case AnnotationTypeSampler:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy sampler annotation requires exactly one argument", lineNum)
		}
		s, ok := uniform.SamplerByName(args[1])
		if !ok {
			return nil, fmt.Errorf("line %d: unknown sampler %q in @oxy sampler annotation", lineNum, args[1])
		}
		return &Annotation{
			Type:    AnnotationTypeSampler,
			Name:    s.Name,
			Line:    lineNum,
			Group:   uniform.TextureGroup,
			Binding: 2 * s.Unit,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
