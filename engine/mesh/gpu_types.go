package mesh

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
)

// Vertex attribute slots. Each attribute lives in its own tightly packed float32 stream.
const (
	AttributePosition = 0
	AttributeNormal   = 1
	AttributeTangent  = 2
	AttributeTexCoord = 3

	attributeCount = 4
)

// attributeComponents is the float32 component count of each attribute slot.
var attributeComponents = [attributeCount]int{
	AttributePosition: 3,
	AttributeNormal:   3,
	AttributeTangent:  4,
	AttributeTexCoord: 2,
}

var attributeNames = [attributeCount]string{
	AttributePosition: "Positions",
	AttributeNormal:   "Normals",
	AttributeTangent:  "Tangents",
	AttributeTexCoord: "TexCoords",
}

// MeshData is the CPU-side description of one mesh before registration.
// Normals, Tangents and TexCoords may be empty, in which case they are zero-filled on registration;
// otherwise they must have one entry per position.
type MeshData struct {
	Positions [][3]float32
	Normals   [][3]float32
	Tangents  [][4]float32
	TexCoords [][2]float32
	Indices   []uint16
}

// VertexCount returns the number of vertices described by the positions.
func (m *MeshData) VertexCount() int {
	return len(m.Positions)
}

// Handle locates one mesh inside the shared buffers of a Store. Handles are immutable and are
// passed around by pointer; two instances use the same mesh exactly when their handles are the
// same pointer.
type Handle struct {
	// VertexCount is the number of vertices the mesh owns.
	VertexCount int
	// IndexCount is the number of indices the mesh owns.
	IndexCount int
	// IndexByteOffset is the byte offset of the mesh's first index in the shared index buffer.
	IndexByteOffset int
	// BaseVertex is added to every index of the mesh when drawing.
	BaseVertex int
}

// FirstIndex returns the element offset of the mesh's first index in the shared index buffer.
//
// Returns:
//   - int: IndexByteOffset expressed in index elements
func (h *Handle) FirstIndex() int {
	return h.IndexByteOffset / renderer.IndexElementSize
}

// fullScreenQuad is the two-triangle quad covering clip space at depth 1.
func fullScreenQuad() MeshData {
	return MeshData{
		Positions: [][3]float32{
			{1, 1, 1},
			{1, -1, 1},
			{-1, 1, 1},
			{-1, -1, 1},
		},
		Indices: []uint16{0, 3, 1, 0, 2, 3},
	}
}
