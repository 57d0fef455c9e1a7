package mesh

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
)

var (
	// ErrUploaded is returned when a mesh is registered after the store was uploaded.
	ErrUploaded = errors.New("mesh store already uploaded")
	// ErrMisalignedAttributes is returned when an attribute array does not have one entry per vertex.
	ErrMisalignedAttributes = errors.New("attribute count does not match vertex count")
	// ErrIndexOutOfRange is returned when an index refers past the mesh's last vertex.
	ErrIndexOutOfRange = errors.New("index out of range")
)

type storeImpl struct {
	backend renderer.Backend
	label   string

	positions []float32
	normals   []float32
	tangents  []float32
	texcoords []float32
	indices   []uint16

	vertexCount int
	indexCount  int
	meshCount   int

	uploaded    bool
	streams     []renderer.VertexStream
	indexBuffer renderer.BufferHandle

	quad *Handle
}

// Store accumulates the geometry of many meshes into shared CPU arrays and uploads them once into
// one buffer per vertex attribute plus one index buffer. Every mesh is then drawn from the same
// bound buffers using its Handle's index offset and base vertex.
type Store interface {
	// RegisterMesh appends a mesh to the shared arrays.
	//
	// Parameters:
	//   - data: the mesh geometry
	//
	// Returns:
	//   - *Handle: the mesh's location in the shared buffers
	//   - error: ErrUploaded after Upload, ErrMisalignedAttributes or ErrIndexOutOfRange for malformed input
	RegisterMesh(data MeshData) (*Handle, error)

	// Load reads a mesh description file and registers it.
	//
	// Parameters:
	//   - path: the description file
	//
	// Returns:
	//   - *Handle: the registered mesh, or nil on failure
	//   - error: an *AssetLoadError if the file could not be read or parsed
	Load(path string) (*Handle, error)

	// Upload transfers the accumulated arrays into GPU buffers, binds them and releases the CPU copies.
	// Calling Upload twice panics.
	//
	// Returns:
	//   - error: an error if a buffer could not be created or written
	Upload() error

	// Uploaded reports whether Upload has run.
	Uploaded() bool

	// Bind re-issues the vertex stream bindings of the uploaded buffers.
	Bind()

	// FullScreenQuad returns the clip-space quad registered when the store was created.
	FullScreenQuad() *Handle

	// VertexCount returns the total number of registered vertices.
	VertexCount() int

	// IndexCount returns the total number of registered indices.
	IndexCount() int

	// MeshCount returns the number of registered meshes, including the full-screen quad.
	MeshCount() int

	// Release frees the GPU buffers.
	Release()
}

var _ Store = &storeImpl{}

// NewStore creates a Store and registers the full-screen quad as its first mesh.
//
// Parameters:
//   - backend: the backend buffers are created on
//   - options: functional options to configure the store
//
// Returns:
//   - Store: the newly created store
func NewStore(backend renderer.Backend, options ...StoreBuilderOption) Store {
	s := &storeImpl{
		backend: backend,
		label:   "Mesh Store",
	}
	for _, option := range options {
		option(s)
	}

	quad, err := s.RegisterMesh(fullScreenQuad())
	if err != nil {
		panic(fmt.Errorf("register full-screen quad: %w", err))
	}
	s.quad = quad

	return s
}

func (s *storeImpl) RegisterMesh(data MeshData) (*Handle, error) {
	if s.uploaded {
		return nil, ErrUploaded
	}

	n := data.VertexCount()
	if err := checkAttribute(attributeNames[AttributeNormal], len(data.Normals), n); err != nil {
		return nil, err
	}
	if err := checkAttribute(attributeNames[AttributeTangent], len(data.Tangents), n); err != nil {
		return nil, err
	}
	if err := checkAttribute(attributeNames[AttributeTexCoord], len(data.TexCoords), n); err != nil {
		return nil, err
	}
	for i, idx := range data.Indices {
		if int(idx) >= n {
			return nil, fmt.Errorf("index %d = %d with %d vertices: %w", i, idx, n, ErrIndexOutOfRange)
		}
	}

	h := &Handle{
		VertexCount:     n,
		IndexCount:      len(data.Indices),
		IndexByteOffset: s.indexCount * renderer.IndexElementSize,
		BaseVertex:      s.vertexCount,
	}

	for _, p := range data.Positions {
		s.positions = append(s.positions, p[:]...)
	}
	if len(data.Normals) == 0 {
		s.normals = append(s.normals, make([]float32, n*attributeComponents[AttributeNormal])...)
	}
	for _, v := range data.Normals {
		s.normals = append(s.normals, v[:]...)
	}
	if len(data.Tangents) == 0 {
		s.tangents = append(s.tangents, make([]float32, n*attributeComponents[AttributeTangent])...)
	}
	for _, v := range data.Tangents {
		s.tangents = append(s.tangents, v[:]...)
	}
	if len(data.TexCoords) == 0 {
		s.texcoords = append(s.texcoords, make([]float32, n*attributeComponents[AttributeTexCoord])...)
	}
	for _, v := range data.TexCoords {
		s.texcoords = append(s.texcoords, v[:]...)
	}
	s.indices = append(s.indices, data.Indices...)

	s.vertexCount += n
	s.indexCount += len(data.Indices)
	s.meshCount++

	return h, nil
}

func checkAttribute(name string, got, vertices int) error {
	if got != 0 && got != vertices {
		return fmt.Errorf("%s: %d entries for %d vertices: %w", name, got, vertices, ErrMisalignedAttributes)
	}
	return nil
}

func (s *storeImpl) Load(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		loadErr := &AssetLoadError{Path: path, Err: err}
		log.Printf("[MeshStore] %v", loadErr)
		return nil, loadErr
	}
	defer f.Close()

	data, err := ParseMesh(path, f)
	if err != nil {
		log.Printf("[MeshStore] %v", err)
		return nil, err
	}

	h, err := s.RegisterMesh(data)
	if err != nil {
		loadErr := &AssetLoadError{Path: path, Err: err}
		log.Printf("[MeshStore] %v", loadErr)
		return nil, loadErr
	}
	return h, nil
}

func (s *storeImpl) Upload() error {
	if s.uploaded {
		panic("mesh store: Upload called twice")
	}
	s.uploaded = true

	arrays := [attributeCount][]float32{
		AttributePosition: s.positions,
		AttributeNormal:   s.normals,
		AttributeTangent:  s.tangents,
		AttributeTexCoord: s.texcoords,
	}

	s.streams = make([]renderer.VertexStream, 0, attributeCount)
	for slot, data := range arrays {
		buf, err := s.createBuffer(s.label+" "+attributeNames[slot], renderer.BufferUsageVertex, common.SliceToBytes(data))
		if err != nil {
			return err
		}
		s.streams = append(s.streams, renderer.VertexStream{
			Slot:       slot,
			Buffer:     buf,
			Components: attributeComponents[slot],
		})
	}

	// Buffer writes must be a multiple of four bytes.
	indices := s.indices
	if len(indices)%2 != 0 {
		indices = append(indices, 0)
	}
	buf, err := s.createBuffer(s.label+" Indices", renderer.BufferUsageIndex, common.SliceToBytes(indices))
	if err != nil {
		return err
	}
	s.indexBuffer = buf

	s.positions = nil
	s.normals = nil
	s.tangents = nil
	s.texcoords = nil
	s.indices = nil

	s.Bind()
	log.Printf("[MeshStore] uploaded %d meshes (%d vertices, %d indices)", s.meshCount, s.vertexCount, s.indexCount)
	return nil
}

func (s *storeImpl) createBuffer(label string, usage renderer.BufferUsage, data []byte) (renderer.BufferHandle, error) {
	buf, err := s.backend.CreateBuffer(label, usage, len(data))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", label, err)
	}
	if err := s.backend.WriteBuffer(buf, data); err != nil {
		return 0, fmt.Errorf("write %s: %w", label, err)
	}
	return buf, nil
}

func (s *storeImpl) Uploaded() bool {
	return s.uploaded
}

func (s *storeImpl) Bind() {
	if !s.uploaded {
		return
	}
	s.backend.BindVertexStreams(s.streams, s.indexBuffer)
}

func (s *storeImpl) FullScreenQuad() *Handle {
	return s.quad
}

func (s *storeImpl) VertexCount() int {
	return s.vertexCount
}

func (s *storeImpl) IndexCount() int {
	return s.indexCount
}

func (s *storeImpl) MeshCount() int {
	return s.meshCount
}

func (s *storeImpl) Release() {
	for _, st := range s.streams {
		s.backend.ReleaseBuffer(st.Buffer)
	}
	if s.indexBuffer != 0 {
		s.backend.ReleaseBuffer(s.indexBuffer)
	}
	s.streams = nil
	s.indexBuffer = 0
}
