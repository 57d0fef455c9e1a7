package renderer

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-batch/common"
)

// ErrTimerQueriesUnsupported is returned by CreateTimerQuery when the backend cannot time GPU work.
var ErrTimerQueriesUnsupported = errors.New("timer queries unsupported")

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only specific power-of-two values are valid for GPU hardware. WebGPU guarantees support for
// 1 (off) and 4; higher values are adapter-dependent.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4
)

// BufferHandle, ProgramHandle, TextureHandle and QueryHandle are opaque backend object names.
// The zero value of each means "no object".
type (
	BufferHandle  uint32
	ProgramHandle uint32
	TextureHandle uint32
	QueryHandle   uint32
)

// BufferUsage selects what a buffer created through Backend.CreateBuffer is bound as.
type BufferUsage int

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
	BufferUsageUniform
)

func (u BufferUsage) String() string {
	switch u {
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	case BufferUsageUniform:
		return "uniform"
	}
	return "unknown"
}

// ClearFlags selects the render target aspects cleared by Backend.Clear.
type ClearFlags uint8

const (
	ClearColor ClearFlags = 1 << iota
	ClearDepth
)

// IndexElementSize is the size in bytes of one element of every index buffer (uint16 indices).
const IndexElementSize = 2

// VertexStream binds one per-attribute vertex buffer to an attribute slot.
type VertexStream struct {
	// Slot is the attribute location the stream feeds (0 position, 1 normal, 2 tangent, 3 texcoord).
	Slot int
	// Buffer holds tightly packed float32 components.
	Buffer BufferHandle
	// Components is the number of float32 components per vertex (2, 3 or 4).
	Components int
}

// UniformBlockBinding names a uniform block in shader source and the slot it is bound to.
type UniformBlockBinding struct {
	Name string
	Slot int
	Size int
}

// SamplerBinding names a texture sampler in shader source and the texture unit it reads.
type SamplerBinding struct {
	Name string
	Unit int
}

// ProgramDescriptor describes a linked shader program: both processed stage sources, their
// entry points and the fixed binding table every program shares.
type ProgramDescriptor struct {
	Label              string
	VertexSource       string
	FragmentSource     string
	VertexEntryPoint   string
	FragmentEntryPoint string
	UniformBlocks      []UniformBlockBinding
	Samplers           []SamplerBinding
}

// Backend is the command surface every renderer component talks to. Implementations are driven
// from a single render goroutine and are not safe for concurrent use.
//
// Bind calls (BindUniformBuffer, BindVertexStreams, UseProgram, BindTexture) only record state;
// the state in effect when a draw is issued is the state the draw uses.
type Backend interface {
	// BeginFrame starts recording a frame.
	//
	// Returns:
	//   - error: an error if the frame target could not be acquired
	BeginFrame() error

	// EndFrame submits everything recorded since BeginFrame and presents the frame.
	//
	// Returns:
	//   - error: an error if submission failed
	EndFrame() error

	// CreateBuffer allocates a GPU buffer with room for size bytes.
	//
	// Parameters:
	//   - label: debug label
	//   - usage: what the buffer will be bound as
	//   - size: capacity in bytes
	//
	// Returns:
	//   - BufferHandle: the new buffer
	//   - error: an error if allocation failed
	CreateBuffer(label string, usage BufferUsage, size int) (BufferHandle, error)

	// WriteBuffer replaces the contents of buf, starting at offset zero.
	// Writes larger than the buffer's capacity fail and leave the buffer untouched.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the buffer is unknown or too small
	WriteBuffer(buf BufferHandle, data []byte) error

	// BindUniformBuffer attaches a uniform buffer to a fixed binding slot.
	//
	// Parameters:
	//   - slot: the binding slot
	//   - buf: the uniform buffer
	BindUniformBuffer(slot int, buf BufferHandle)

	// BindVertexStreams attaches the per-attribute vertex buffers and the index buffer used by
	// subsequent draws.
	//
	// Parameters:
	//   - streams: one entry per attribute slot
	//   - indices: the uint16 index buffer
	BindVertexStreams(streams []VertexStream, indices BufferHandle)

	// CreateProgram links a program from processed stage sources.
	//
	// Parameters:
	//   - desc: the program description
	//
	// Returns:
	//   - ProgramHandle: the linked program
	//   - error: the link diagnostic if linking failed
	CreateProgram(desc ProgramDescriptor) (ProgramHandle, error)

	// UseProgram makes p the program used by subsequent draws.
	//
	// Parameters:
	//   - p: the program
	UseProgram(p ProgramHandle)

	// CreateTexture uploads an RGBA8 texture.
	//
	// Parameters:
	//   - label: debug label
	//   - data: pixel data and dimensions
	//
	// Returns:
	//   - TextureHandle: the new texture
	//   - error: an error if creation failed
	CreateTexture(label string, data common.TextureStagingData) (TextureHandle, error)

	// BindTexture attaches a texture to a texture unit. The zero handle unbinds the unit.
	//
	// Parameters:
	//   - unit: the texture unit
	//   - tex: the texture
	BindTexture(unit int, tex TextureHandle)

	// Clear clears the selected aspects of the current render target.
	//
	// Parameters:
	//   - flags: aspects to clear
	//   - color: RGBA clear colour used when ClearColor is set
	Clear(flags ClearFlags, color [4]float32)

	// DrawIndexed issues a non-instanced indexed draw.
	//
	// Parameters:
	//   - indexCount: number of indices
	//   - firstIndex: first element of the bound index buffer
	//   - baseVertex: value added to every index
	DrawIndexed(indexCount, firstIndex, baseVertex int)

	// DrawIndexedInstanced issues an instanced indexed draw. Instance i reads the i-th transform
	// of the per-object uniform block.
	//
	// Parameters:
	//   - indexCount: number of indices
	//   - firstIndex: first element of the bound index buffer
	//   - instanceCount: number of instances
	//   - baseVertex: value added to every index
	DrawIndexedInstanced(indexCount, firstIndex, instanceCount, baseVertex int)

	// CreateTimerQuery allocates a GPU elapsed-time query.
	//
	// Parameters:
	//   - label: debug label
	//
	// Returns:
	//   - QueryHandle: the new query
	//   - error: an error if the device cannot time GPU work
	CreateTimerQuery(label string) (QueryHandle, error)

	// BeginTimerQuery starts timing GPU work on q.
	BeginTimerQuery(q QueryHandle)

	// EndTimerQuery stops timing GPU work on q.
	EndTimerQuery(q QueryHandle)

	// TimerQueryResult polls q without blocking.
	//
	// Parameters:
	//   - q: the query
	//
	// Returns:
	//   - uint64: elapsed GPU time in nanoseconds, valid when ready is true
	//   - bool: true once the result is available
	TimerQueryResult(q QueryHandle) (uint64, bool)

	ReleaseBuffer(buf BufferHandle)
	ReleaseProgram(p ProgramHandle)
	ReleaseTexture(tex TextureHandle)
	ReleaseQuery(q QueryHandle)
}
