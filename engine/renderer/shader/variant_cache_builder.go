package shader

import (
	"io/fs"
	"os"
)

// DefaultShaderDir is the directory shader sources are read from when no file system is given.
const DefaultShaderDir = "assets/shaders"

// VariantCacheBuilderOption is a functional option applied to a variant cache during construction via NewVariantCache.
type VariantCacheBuilderOption func(*variantCache)

func defaultShaderFS() fs.FS {
	return os.DirFS(DefaultShaderDir)
}

// WithFS sets the file system the stage sources are read from.
// Defaults to the DefaultShaderDir directory.
//
// Parameters:
//   - fsys: the file system holding "<family>.vert.wgsl" and "<family>.frag.wgsl"
//
// Returns:
//   - VariantCacheBuilderOption: a function that applies the file system option to a variant cache
func WithFS(fsys fs.FS) VariantCacheBuilderOption {
	return func(c *variantCache) {
		c.fsys = fsys
	}
}

// WithValidator replaces the naga stage validator.
//
// Parameters:
//   - v: the validator run on every processed stage
//
// Returns:
//   - VariantCacheBuilderOption: a function that applies the validator option to a variant cache
func WithValidator(v Validator) VariantCacheBuilderOption {
	return func(c *variantCache) {
		c.validator = v
	}
}

// WithSupportedFeatures sets the initial supported ceiling. Defaults to AllFeatures.
//
// Parameters:
//   - f: the supported features
//
// Returns:
//   - VariantCacheBuilderOption: a function that applies the supported features option to a variant cache
func WithSupportedFeatures(f FeatureMask) VariantCacheBuilderOption {
	return func(c *variantCache) {
		c.supported = f
	}
}

// WithEnabledFeatures sets the initial enabled mask. Defaults to AllFeatures.
//
// Parameters:
//   - f: the enabled features
//
// Returns:
//   - VariantCacheBuilderOption: a function that applies the enabled features option to a variant cache
func WithEnabledFeatures(f FeatureMask) VariantCacheBuilderOption {
	return func(c *variantCache) {
		c.enabled = f
	}
}
