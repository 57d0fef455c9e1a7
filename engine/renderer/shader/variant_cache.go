package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
)

// Variant is one compiled program of a shader family.
type Variant struct {
	// Features is the effective feature mask the program was compiled with.
	Features FeatureMask

	// Program is the linked program on the backend.
	Program renderer.ProgramHandle

	// Declarations lists the uniform blocks and samplers the two stages declared.
	Declarations []Annotation
}

// variantCache is the implementation of the VariantCache interface.
type variantCache struct {
	backend   renderer.Backend
	family    string
	fsys      fs.FS
	validator Validator
	pp        PreProcessor

	supported FeatureMask
	enabled   FeatureMask

	variants     []Variant
	compileCount int
}

// VariantCache lazily compiles and caches the programs of one shader family, one per effective
// feature mask. The cache only grows.
type VariantCache interface {
	// Family returns the name of the shader family.
	//
	// Returns:
	//   - string: the family name
	Family() string

	// Effective returns the mask a request resolves to: requested ∧ enabled ∧ supported.
	//
	// Parameters:
	//   - requested: the features the caller asks for
	//
	// Returns:
	//   - FeatureMask: the effective mask
	Effective(requested FeatureMask) FeatureMask

	// BindVariant activates the program for the effective mask of requested, compiling and caching
	// it on first use. A failed compile is not cached, so the next request for the same mask retries.
	//
	// Parameters:
	//   - requested: the features the caller asks for
	//
	// Returns:
	//   - error: an *AssetLoadError if a source could not be read, or a *CompileError if a stage
	//     failed to compile or the program failed to link
	BindVariant(requested FeatureMask) error

	// EnableFeature sets bits in the enabled mask.
	EnableFeature(f FeatureMask)

	// DisableFeature clears bits in the enabled mask.
	DisableFeature(f FeatureMask)

	// SetSupportedFeatures replaces the supported ceiling.
	SetSupportedFeatures(f FeatureMask)

	// EnabledFeatures returns enabled ∧ supported.
	EnabledFeatures() FeatureMask

	// SupportedFeatures returns the supported ceiling.
	SupportedFeatures() FeatureMask

	// Variants returns the compiled variants in compile order.
	Variants() []Variant

	// CompileCount returns the number of successful compiles.
	CompileCount() int

	// Release frees every compiled program.
	Release()
}

var _ VariantCache = &variantCache{}

// NewVariantCache creates an empty cache for a shader family. Sources are read from
// "<family>.vert.wgsl" and "<family>.frag.wgsl" when a variant is first requested.
//
// Parameters:
//   - backend: the backend programs are linked on
//   - family: the shader family name
//   - options: variadic list of VariantCacheBuilderOption functions to configure the cache
//
// Returns:
//   - VariantCache: the newly created cache
func NewVariantCache(backend renderer.Backend, family string, options ...VariantCacheBuilderOption) VariantCache {
	c := &variantCache{
		backend:   backend,
		family:    family,
		supported: AllFeatures,
		enabled:   AllFeatures,
		pp:        NewPreProcessor(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.fsys == nil {
		c.fsys = defaultShaderFS()
	}
	if c.validator == nil {
		c.validator = NewNagaValidator()
	}
	return c
}

func (c *variantCache) Family() string {
	return c.family
}

func (c *variantCache) Effective(requested FeatureMask) FeatureMask {
	return requested & c.enabled & c.supported
}

func (c *variantCache) BindVariant(requested FeatureMask) error {
	mask := c.Effective(requested)
	for i := range c.variants {
		if c.variants[i].Features == mask {
			c.use(i)
			return nil
		}
	}

	v, err := c.compile(mask)
	if err != nil {
		log.Printf("[ShaderCache] %s: %v", c.family, err)
		return err
	}
	c.variants = append(c.variants, v)
	c.compileCount++
	log.Printf("[ShaderCache] compiled %s variant [%s] (%d cached)", c.family, mask, len(c.variants))
	c.use(len(c.variants) - 1)
	return nil
}

func (c *variantCache) use(i int) {
	c.backend.UseProgram(c.variants[i].Program)
}

func (c *variantCache) compile(mask FeatureMask) (Variant, error) {
	var stages [2]stageSource
	for i, stage := range []Stage{StageVertex, StageFragment} {
		raw, err := readStage(c.fsys, c.family, stage)
		if err != nil {
			return Variant{}, err
		}
		s, err := buildStage(c.pp, c.validator, c.family, stage, raw, mask)
		if err != nil {
			return Variant{}, err
		}
		stages[i] = s
	}

	prog, err := c.backend.CreateProgram(renderer.ProgramDescriptor{
		Label:              fmt.Sprintf("%s [%s]", c.family, mask),
		VertexSource:       stages[0].source,
		FragmentSource:     stages[1].source,
		VertexEntryPoint:   stages[0].entryPoint,
		FragmentEntryPoint: stages[1].entryPoint,
		UniformBlocks:      uniform.UniformBlockBindings(),
		Samplers:           uniform.SamplerBindings(),
	})
	if err != nil {
		return Variant{}, &CompileError{Family: c.family, Stage: StageLink, Features: mask, Log: err.Error(), Err: err}
	}

	return Variant{
		Features:     mask,
		Program:      prog,
		Declarations: append(stages[0].declarations, stages[1].declarations...),
	}, nil
}

func (c *variantCache) EnableFeature(f FeatureMask) {
	c.enabled |= f
}

func (c *variantCache) DisableFeature(f FeatureMask) {
	c.enabled &^= f
}

func (c *variantCache) SetSupportedFeatures(f FeatureMask) {
	c.supported = f
}

func (c *variantCache) EnabledFeatures() FeatureMask {
	return c.enabled & c.supported
}

func (c *variantCache) SupportedFeatures() FeatureMask {
	return c.supported
}

func (c *variantCache) Variants() []Variant {
	return c.variants
}

func (c *variantCache) CompileCount() int {
	return c.compileCount
}

func (c *variantCache) Release() {
	for _, v := range c.variants {
		c.backend.ReleaseProgram(v.Program)
	}
	c.variants = nil
}

// IsCompileError reports whether err carries a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
