// pre_processor.go implements the Oxy WGSL shader pre-processor. WGSL has no preprocessor of its
// own, so feature variants are selected with C-style conditional directives evaluated here, and
// @oxy: annotations are replaced with the declarations of the fixed uniform binding table.
//
// Supported directives, each on its own line:
//
//	#define NAME
//	#undef NAME
//	#ifdef NAME
//	#ifndef NAME
//	#else
//	#endif
//
// Directive lines and lines inside inactive branches are emitted as blank lines so that line
// numbers in compiler diagnostics still match the source file.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// defines holds the symbols defined so far in the current Process call.
	defines map[string]struct{}

	// included tracks which uniform block structs were already injected into the current source.
	included map[string]struct{}

	// declarations accumulates the block and sampler annotations of the active branches during a
	// Process call. Reset at the start of each Process invocation.
	declarations []Annotation
}

// PreProcessor evaluates conditional directives and expands @oxy: annotations in WGSL source.
type PreProcessor interface {
	// Process evaluates the directives of a WGSL source and replaces the @oxy: annotations of the
	// active branches with their generated WGSL. Symbols start out undefined for every call.
	//
	// The declarations list is reset at the start of each call and can be retrieved
	// via Declarations() after Process returns.
	//
	// Parameters:
	//   - source: the WGSL source code, usually after InjectDefines
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error for a malformed directive, an unbalanced #ifdef/#endif, or a bad annotation
	Process(source string) (string, error)

	// Declarations returns the block and sampler annotations found in the active branches during
	// the most recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		defines:  make(map[string]struct{}),
		included: make(map[string]struct{}),
	}
}

// InjectDefines inserts one "#define NAME" line per symbol immediately after the first line of source.
//
// Parameters:
//   - source: the stage source
//   - defines: the symbols to define, in order
//
// Returns:
//   - string: the source with the define lines inserted
func InjectDefines(source string, defines []string) string {
	if len(defines) == 0 {
		return source
	}
	var sb strings.Builder
	first, rest, found := strings.Cut(source, "\n")
	sb.Grow(len(source) + len(defines)*24)
	sb.WriteString(first)
	sb.WriteByte('\n')
	for _, d := range defines {
		sb.WriteString("#define ")
		sb.WriteString(d)
		sb.WriteByte('\n')
	}
	if found {
		sb.WriteString(rest)
	}
	return sb.String()
}

// condFrame is one open #ifdef/#ifndef.
type condFrame struct {
	// outer is whether the enclosing branch is active.
	outer bool
	// cond is the result of the directive's test.
	cond bool
	// inElse is set once #else has been seen.
	inElse bool
	line   int
}

func (f condFrame) active() bool {
	if f.inElse {
		return f.outer && !f.cond
	}
	return f.outer && f.cond
}

func (p *preProcessor) Process(source string) (string, error) {
	clear(p.defines)
	clear(p.included)
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	var stack []condFrame
	active := true

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") {
			fields := strings.Fields(trimmed)
			directive := fields[0]
			arg := ""
			switch directive {
			case "#define", "#undef", "#ifdef", "#ifndef":
				if len(fields) != 2 {
					return "", fmt.Errorf("line %d: %s requires exactly one symbol", lineNum, directive)
				}
				arg = fields[1]
			case "#else", "#endif":
				if len(fields) != 1 {
					return "", fmt.Errorf("line %d: unexpected tokens after %s", lineNum, directive)
				}
			default:
				return "", fmt.Errorf("line %d: unknown directive %q", lineNum, directive)
			}

			switch directive {
			case "#define":
				if active {
					p.defines[arg] = struct{}{}
				}
			case "#undef":
				if active {
					delete(p.defines, arg)
				}
			case "#ifdef", "#ifndef":
				_, defined := p.defines[arg]
				stack = append(stack, condFrame{outer: active, cond: defined == (directive == "#ifdef"), line: lineNum})
			case "#else":
				if len(stack) == 0 {
					return "", fmt.Errorf("line %d: #else without #ifdef", lineNum)
				}
				top := &stack[len(stack)-1]
				if top.inElse {
					return "", fmt.Errorf("line %d: second #else for the #ifdef on line %d", lineNum, top.line)
				}
				top.inElse = true
			case "#endif":
				if len(stack) == 0 {
					return "", fmt.Errorf("line %d: #endif without #ifdef", lineNum)
				}
				stack = stack[:len(stack)-1]
			}
			active = len(stack) == 0 || stack[len(stack)-1].active()
			out = append(out, "")
			continue
		}

		if !active {
			out = append(out, "")
			continue
		}

		a, err := parseAnnotation(line, lineNum)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			out = append(out, p.includeBlock(a.Name))
		case AnnotationTypeBlock:
			b, _ := uniform.BlockByName(a.Name)
			decl := fmt.Sprintf("@group(%d) @binding(%d) var<uniform> %s: %s;", a.Group, a.Binding, b.Name, b.StructName)
			out = append(out, p.includeBlock(a.Name)+decl)
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeSampler:
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) var %s: texture_2d<f32>;\n@group(%d) @binding(%d) var %s_sampler: sampler;",
				a.Group, a.Binding, a.Name, a.Group, a.Binding+1, a.Name))
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", lineNum, a.Type)
		}
	}

	if len(stack) > 0 {
		return "", fmt.Errorf("line %d: #ifdef without #endif", stack[len(stack)-1].line)
	}
	return strings.Join(out, "\n"), nil
}

// includeBlock returns the struct source of a uniform block followed by a newline, or an empty
// string if the struct was already injected into the current source.
func (p *preProcessor) includeBlock(name string) string {
	if _, ok := p.included[name]; ok {
		return ""
	}
	p.included[name] = struct{}{}
	b, _ := uniform.BlockByName(name)
	return strings.TrimRight(b.Source, "\n") + "\n"
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
