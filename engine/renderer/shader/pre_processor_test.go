package shader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectDefines(t *testing.T) {
	got := InjectDefines("// header\nbody\n", []string{"TEXTURE_ON", "FOG_ON"})
	assert.Equal(t, "// header\n#define TEXTURE_ON\n#define FOG_ON\nbody\n", got)

	assert.Equal(t, "only\n#define A\n", InjectDefines("only", []string{"A"}))
	assert.Equal(t, "a\nb", InjectDefines("a\nb", nil))
}

func TestFeatureDefinesFollowBitOrder(t *testing.T) {
	m := FeatureShadowPCFFilter | FeatureTexture | FeatureCutout | 256
	assert.Equal(t, []string{"TEXTURE_ON", "ALPHA_TEST_ON", "SHADOW_PCF_FILTER"}, m.Defines())
	assert.Equal(t, "texture|cutout|shadow_pcf_filter|0x100", m.String())
	assert.Equal(t, "none", FeatureMask(0).String())
}

func TestProcessConditionals(t *testing.T) {
	src := strings.Join([]string{
		"// first",
		"#define A",
		"#ifdef A",
		"a-on",
		"#ifdef B",
		"b-on",
		"#else",
		"b-off",
		"#endif",
		"#else",
		"a-off",
		"#endif",
		"#ifndef B",
		"#define B",
		"#endif",
		"#ifdef B",
		"b-defined-late",
		"#endif",
		"#undef A",
		"#ifdef A",
		"a-after-undef",
		"#endif",
	}, "\n")

	out, err := NewPreProcessor().Process(src)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 22, "line count is preserved")
	assert.Equal(t, "a-on", lines[3])
	assert.Equal(t, "b-off", lines[7])
	assert.Equal(t, "b-defined-late", lines[16])
	assert.NotContains(t, out, "a-off")
	assert.NotContains(t, out, "b-on")
	assert.NotContains(t, out, "a-after-undef")
	assert.NotContains(t, out, "#")
}

func TestProcessDefinesInInactiveBranchIgnored(t *testing.T) {
	src := "#ifdef MISSING\n#define X\n//@oxy:block not_a_block\n#endif\n#ifdef X\nx\n#endif"
	out, err := NewPreProcessor().Process(src)
	require.NoError(t, err)
	assert.NotContains(t, out, "x")
}

func TestProcessStateResetsBetweenCalls(t *testing.T) {
	pp := NewPreProcessor()
	_, err := pp.Process("#define A\n//@oxy:block scene_data")
	require.NoError(t, err)
	assert.Len(t, pp.Declarations(), 1)

	out, err := pp.Process("#ifdef A\nleak\n#endif\n//@oxy:block scene_data")
	require.NoError(t, err)
	assert.NotContains(t, out, "leak")
	assert.Contains(t, out, "struct SceneData {", "struct is injected again in a fresh source")
	assert.Len(t, pp.Declarations(), 1)
}

func TestProcessAnnotations(t *testing.T) {
	src := "//@oxy:include shadow_data\n//@oxy:block shadow_data\n//@oxy:block voxel_data\n// @oxy:sampler _ShadowMask"
	pp := NewPreProcessor()
	out, err := pp.Process(src)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "struct ShadowData {"), "include and block share one struct")
	assert.Contains(t, out, "@group(0) @binding(2) var<uniform> shadow_data: ShadowData;")
	assert.Contains(t, out, "struct PCFOffset {")
	assert.Contains(t, out, "@group(0) @binding(3) var<uniform> voxel_data: VoxelData;")
	assert.Contains(t, out, "@group(1) @binding(6) var _ShadowMask: texture_2d<f32>;")
	assert.Contains(t, out, "@group(1) @binding(7) var _ShadowMask_sampler: sampler;")

	decls := pp.Declarations()
	require.Len(t, decls, 3)
	assert.Equal(t, Annotation{Type: AnnotationTypeBlock, Name: "shadow_data", Line: 2, Group: 0, Binding: 2}, decls[0])
	assert.Equal(t, Annotation{Type: AnnotationTypeSampler, Name: "_ShadowMask", Line: 4, Group: 1, Binding: 6}, decls[2])
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "unterminated ifdef", source: "#ifdef A\nx", want: "line 1: #ifdef without #endif"},
		{name: "stray endif", source: "x\n#endif", want: "line 2: #endif without #ifdef"},
		{name: "stray else", source: "#else", want: "#else without #ifdef"},
		{name: "double else", source: "#ifdef A\n#else\n#else\n#endif", want: "second #else"},
		{name: "missing symbol", source: "#define", want: "requires exactly one symbol"},
		{name: "unknown directive", source: "#include foo", want: "unknown directive"},
		{name: "unknown block", source: "//@oxy:block light_data", want: "unknown uniform block"},
		{name: "unknown sampler", source: "//@oxy:sampler _Albedo", want: "unknown sampler"},
		{name: "unknown annotation", source: "//@oxy:group 0 0", want: "unknown @oxy annotation type"},
		{name: "empty annotation", source: "//@oxy:", want: "empty @oxy annotation"},
		{name: "extra argument", source: "//@oxy:block scene_data x", want: "exactly one argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreProcessor().Process(tt.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseEntryPoint(t *testing.T) {
	src := "/* @vertex fn commented() */\n// @fragment fn also_commented()\n@vertex\nfn main_vs() {}\n@fragment fn main_fs() {}"
	assert.Equal(t, "main_vs", parseEntryPoint(src, StageVertex))
	assert.Equal(t, "main_fs", parseEntryPoint(src, StageFragment))
	assert.Equal(t, "", parseEntryPoint(src, StageLink))
}

func TestParseFeatureMask(t *testing.T) {
	m, err := ParseFeatureMask([]string{"texture", "NORMAL_MAP_ON", " Fog "})
	require.NoError(t, err)
	assert.Equal(t, FeatureTexture|FeatureNormalMap|FeatureFog, m)

	m, err = ParseFeatureMask([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, AllFeatures, m)

	_, err = ParseFeatureMask([]string{"texture", "bloom"})
	assert.ErrorContains(t, err, "bloom")
}
