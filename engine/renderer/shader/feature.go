package shader

import (
	"fmt"
	"math/bits"
	"strings"
)

// FeatureMask is a set of shader features. Bit assignments are a fixed wire format; persisted or
// transmitted masks must use them unchanged.
type FeatureMask uint32

const (
	FeatureTexture                 FeatureMask = 1
	FeatureNormalMap               FeatureMask = 2
	FeatureSpecular                FeatureMask = 4
	FeatureCutout                  FeatureMask = 8
	FeatureFog                     FeatureMask = 16
	FeatureDebugShadowMapTexture   FeatureMask = 32
	FeatureDebugDepthTexture       FeatureMask = 64
	FeatureDebugShowCascadeSplits  FeatureMask = 128
	FeatureDebugShowVoxelTreeDepth FeatureMask = 512
	FeatureShadowPCFFilter         FeatureMask = 1024

	// AllFeatures sets every bit, including bits no feature is assigned to.
	AllFeatures FeatureMask = ^FeatureMask(0)
)

type featureInfo struct {
	bit    FeatureMask
	name   string
	define string
}

var features = []featureInfo{
	{FeatureTexture, "texture", "TEXTURE_ON"},
	{FeatureNormalMap, "normal_map", "NORMAL_MAP_ON"},
	{FeatureSpecular, "specular", "SPECULAR_ON"},
	{FeatureCutout, "cutout", "ALPHA_TEST_ON"},
	{FeatureFog, "fog", "FOG_ON"},
	{FeatureDebugShadowMapTexture, "debug_shadow_map_texture", "DEBUG_SHADOW_MAP_TEXTURE"},
	{FeatureDebugDepthTexture, "debug_depth_texture", "DEBUG_DEPTH_TEXTURE"},
	{FeatureDebugShowCascadeSplits, "debug_show_cascade_splits", "DEBUG_SHOW_CASCADE_SPLITS"},
	{FeatureDebugShowVoxelTreeDepth, "debug_show_voxel_tree_depth", "DEBUG_SHOW_VOXEL_TREE_DEPTH"},
	{FeatureShadowPCFFilter, "shadow_pcf_filter", "SHADOW_PCF_FILTER"},
}

// Has reports whether every bit of f is set in m.
func (m FeatureMask) Has(f FeatureMask) bool {
	return m&f == f
}

// Any reports whether at least one bit of f is set in m.
func (m FeatureMask) Any(f FeatureMask) bool {
	return m&f != 0
}

// Defines returns the preprocessor symbol of every set feature bit in ascending bit order.
// Bits with no assigned feature are ignored.
func (m FeatureMask) Defines() []string {
	out := make([]string, 0, bits.OnesCount32(uint32(m)))
	for _, f := range features {
		if m&f.bit != 0 {
			out = append(out, f.define)
		}
	}
	return out
}

func (m FeatureMask) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	rest := m
	for _, f := range features {
		if m&f.bit != 0 {
			names = append(names, f.name)
			rest &^= f.bit
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// ParseFeature maps a feature name ("texture", "normal_map", ...) or its define ("TEXTURE_ON", ...) to its bit.
//
// Parameters:
//   - name: the feature name, case-insensitive
//
// Returns:
//   - FeatureMask: the feature bit
//   - error: an error if the name is unknown
func ParseFeature(name string) (FeatureMask, error) {
	n := strings.TrimSpace(name)
	for _, f := range features {
		if strings.EqualFold(n, f.name) || strings.EqualFold(n, f.define) {
			return f.bit, nil
		}
	}
	return 0, fmt.Errorf("unknown shader feature %q", name)
}

// ParseFeatureMask combines the bits of a list of feature names. "all" selects AllFeatures.
//
// Parameters:
//   - names: feature names accepted by ParseFeature
//
// Returns:
//   - FeatureMask: the union of the named bits
//   - error: an error naming the first unknown feature
func ParseFeatureMask(names []string) (FeatureMask, error) {
	var m FeatureMask
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			m |= AllFeatures
			continue
		}
		f, err := ParseFeature(name)
		if err != nil {
			return 0, err
		}
		m |= f
	}
	return m, nil
}
