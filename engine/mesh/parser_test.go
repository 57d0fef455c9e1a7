package mesh

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/recorder"
)

const triangleMesh = `
vertex 0 0 0
vertex 1 0 0
vertex 0 1 0
normal 0 0 1
normal 0 0 1
normal 0 0 1
tangent 1 0 0 1
tangent 1 0 0 1
tangent 1 0 0 1
texcoord 0 0
texcoord 1 0
texcoord 0 1
triangle 0 1 2
`

func TestParseMesh(t *testing.T) {
	d, err := ParseMesh("tri", strings.NewReader(triangleMesh))
	require.NoError(t, err)

	assert.Equal(t, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, d.Positions)
	assert.Len(t, d.Normals, 3)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, d.Tangents[2])
	assert.Equal(t, [2]float32{1, 0}, d.TexCoords[1])
	assert.Equal(t, []uint16{2, 1, 0}, d.Indices, "winding reversed")
}

func TestParseMeshErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		target error
	}{
		{name: "unknown record", source: "vertex 0 0 0\nquad 0 1 2 3\n", target: ErrUnknownRecord},
		{name: "truncated record", source: "vertex 0 0"},
		{name: "bad number", source: "normal 0 x 1"},
		{name: "index overflow", source: "triangle 0 1 70000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMesh(tt.name, strings.NewReader(tt.source))
			require.Error(t, err)

			var loadErr *AssetLoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, tt.name, loadErr.Path)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tri.mesh")
	require.NoError(t, os.WriteFile(path, []byte(triangleMesh), 0o644))

	s := NewStore(recorder.NewRecorder())
	h, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, h.VertexCount)
	assert.Equal(t, 3, h.IndexCount)
	assert.Equal(t, 4, h.BaseVertex)
}

func TestStoreLoadFailureRegistersNothing(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.mesh")
	require.NoError(t, os.WriteFile(bad, []byte("vertex 0 0 0\nvertex 1 1 1\nbogus\n"), 0o644))

	s := NewStore(recorder.NewRecorder())
	for _, path := range []string{bad, filepath.Join(dir, "missing.mesh")} {
		h, err := s.Load(path)
		assert.Nil(t, h)
		var loadErr *AssetLoadError
		assert.ErrorAs(t, err, &loadErr)
	}
	assert.Equal(t, 1, s.MeshCount())
	assert.Equal(t, 4, s.VertexCount())
}

func TestLoaderCachesHandles(t *testing.T) {
	fsys := fstest.MapFS{
		"tri.mesh": {Data: []byte(triangleMesh)},
	}
	s := NewStore(recorder.NewRecorder())
	l := NewLoader(s, WithFS(fsys))

	a, err := l.Load("tri.mesh")
	require.NoError(t, err)
	b, err := l.Load("tri.mesh")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 2, s.MeshCount())

	cached, ok := l.Cached("tri.mesh")
	assert.True(t, ok)
	assert.Same(t, a, cached)
}

func TestLoaderLoadAllRegistersInInputOrder(t *testing.T) {
	fsys := fstest.MapFS{}
	names := []string{"a.mesh", "b.mesh", "c.mesh", "d.mesh", "e.mesh", "f.mesh"}
	for i, name := range names {
		var sb strings.Builder
		for range i + 3 {
			sb.WriteString("vertex 0 0 0\n")
		}
		sb.WriteString("triangle 0 1 2\n")
		fsys[name] = &fstest.MapFile{Data: []byte(sb.String())}
	}
	fsys["broken.mesh"] = &fstest.MapFile{Data: []byte("vertex 0 0 0\nsphere 1\n")}

	s := NewStore(recorder.NewRecorder())
	l := NewLoader(s, WithFS(fsys), WithWorkers(3))

	paths := append([]string{}, names[:3]...)
	paths = append(paths, "broken.mesh", "missing.mesh", names[0])
	paths = append(paths, names[3:]...)

	handles, err := l.LoadAll(paths)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRecord)
	require.Len(t, handles, len(paths))

	assert.Nil(t, handles[3])
	assert.Nil(t, handles[4])
	assert.Same(t, handles[0], handles[5], "duplicate path shares the handle")

	base := 4
	for i, h := range []*Handle{handles[0], handles[1], handles[2], handles[6], handles[7], handles[8]} {
		require.NotNil(t, h)
		assert.Equal(t, base, h.BaseVertex, "mesh %d", i)
		assert.Equal(t, i+3, h.VertexCount)
		base += h.VertexCount
	}
	assert.Equal(t, 7, s.MeshCount())
}
