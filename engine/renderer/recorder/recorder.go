// Package recorder provides a headless renderer.Backend that records every command it receives.
// It backs the unit tests and the headless mode of the viewer.
package recorder

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
)

// MaxTextureUnits is the number of texture units the recorder tracks per draw.
const MaxTextureUnits = 8

var (
	// ErrUnknownBuffer is returned when a write targets a buffer that was never created or was released.
	ErrUnknownBuffer = errors.New("unknown buffer")
	// ErrBufferOverflow is returned when a write is larger than the buffer's capacity.
	ErrBufferOverflow = errors.New("write exceeds buffer capacity")
	// ErrTimerQueriesUnsupported is returned by CreateTimerQuery when the recorder was built without timer queries.
	ErrTimerQueriesUnsupported = renderer.ErrTimerQueriesUnsupported
)

// Op identifies a recorded command.
type Op int

const (
	OpBeginFrame Op = iota
	OpEndFrame
	OpWriteBuffer
	OpBindUniform
	OpBindStreams
	OpUseProgram
	OpBindTexture
	OpClear
	OpDraw
	OpDrawInstanced
	OpBeginQuery
	OpEndQuery
)

var opNames = [...]string{
	OpBeginFrame:    "BeginFrame",
	OpEndFrame:      "EndFrame",
	OpWriteBuffer:   "WriteBuffer",
	OpBindUniform:   "BindUniform",
	OpBindStreams:   "BindStreams",
	OpUseProgram:    "UseProgram",
	OpBindTexture:   "BindTexture",
	OpClear:         "Clear",
	OpDraw:          "Draw",
	OpDrawInstanced: "DrawInstanced",
	OpBeginQuery:    "BeginQuery",
	OpEndQuery:      "EndQuery",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Command is one entry of the command log. Target is the slot, unit or handle the command
// addressed; Value carries the bound handle for bind commands.
type Command struct {
	Op     Op
	Target int
	Value  uint32
}

// DrawCall captures a draw and the state it was issued with.
type DrawCall struct {
	Instanced     bool
	Program       renderer.ProgramHandle
	IndexCount    int
	FirstIndex    int
	InstanceCount int
	BaseVertex    int
	Textures      [MaxTextureUnits]renderer.TextureHandle
	// Snapshot is a copy of the uniform buffer bound at the snapshot slot when the draw was issued.
	Snapshot []byte
}

// ClearCall captures a clear.
type ClearCall struct {
	Flags renderer.ClearFlags
	Color [4]float32
}

type buffer struct {
	label string
	usage renderer.BufferUsage
	data  []byte
	size  int
}

type query struct {
	label    string
	elapsed  uint64
	readyAt  int
	ended    bool
	released bool
}

type recorder struct {
	nextHandle uint32

	buffers  map[renderer.BufferHandle]*buffer
	programs map[renderer.ProgramHandle]renderer.ProgramDescriptor
	textures map[renderer.TextureHandle]common.TextureStagingData
	queries  map[renderer.QueryHandle]*query

	uniforms     map[int]renderer.BufferHandle
	streams      []renderer.VertexStream
	indexBuffer  renderer.BufferHandle
	program      renderer.ProgramHandle
	boundTexture [MaxTextureUnits]renderer.TextureHandle

	commands     []Command
	draws        []DrawCall
	clears       []ClearCall
	programLog   []renderer.ProgramDescriptor
	programBinds int
	textureBinds map[int]int
	bufferWrites map[renderer.BufferHandle]int
	frames       int
	inFrame      bool

	snapshotSlot  int
	timerQueries  bool
	queryLatency  int
	queryTimer    func(label string, frame int) uint64
	scriptedTimes map[string]uint64
	programCheck  func(desc renderer.ProgramDescriptor) error
}

// Recorder is a renderer.Backend that keeps a log of every command and exposes counters for
// inspection.
type Recorder interface {
	renderer.Backend

	// Commands returns the ordered command log.
	//
	// Returns:
	//   - []Command: every recorded command since construction or the last Reset
	Commands() []Command

	// Draws returns every draw issued since construction or the last Reset.
	//
	// Returns:
	//   - []DrawCall: recorded draws in submission order
	Draws() []DrawCall

	// Clears returns every clear issued since construction or the last Reset.
	Clears() []ClearCall

	// Programs returns the descriptors of every successfully linked program, in link order.
	Programs() []renderer.ProgramDescriptor

	// ProgramBinds returns the number of UseProgram calls.
	ProgramBinds() int

	// TextureBinds returns the number of BindTexture calls for a texture unit.
	//
	// Parameters:
	//   - unit: the texture unit
	//
	// Returns:
	//   - int: number of binds on that unit
	TextureBinds(unit int) int

	// BufferWrites returns the number of successful WriteBuffer calls on buf.
	BufferWrites(buf renderer.BufferHandle) int

	// BufferData returns a copy of the current contents of buf.
	BufferData(buf renderer.BufferHandle) []byte

	// BufferLabel returns the label buf was created with, or "" if unknown.
	BufferLabel(buf renderer.BufferHandle) string

	// BoundUniform returns the buffer bound at a uniform slot.
	BoundUniform(slot int) renderer.BufferHandle

	// BoundStreams returns the vertex streams and index buffer currently bound.
	BoundStreams() ([]renderer.VertexStream, renderer.BufferHandle)

	// Frames returns the number of completed frames.
	Frames() int

	// LiveBuffers returns the number of buffers that have not been released.
	LiveBuffers() int

	// SetQueryElapsed scripts the elapsed time reported by queries created with label.
	//
	// Parameters:
	//   - label: the query label
	//   - ns: elapsed nanoseconds reported for every subsequent measurement
	SetQueryElapsed(label string, ns uint64)

	// Reset clears the command log and counters. Created objects and bound state are kept.
	Reset()
}

var _ Recorder = &recorder{}

// NewRecorder creates a Recorder.
//
// Parameters:
//   - options: functional options to configure the recorder
//
// Returns:
//   - Recorder: the newly created recorder
func NewRecorder(options ...RecorderBuilderOption) Recorder {
	r := &recorder{
		buffers:       make(map[renderer.BufferHandle]*buffer),
		programs:      make(map[renderer.ProgramHandle]renderer.ProgramDescriptor),
		textures:      make(map[renderer.TextureHandle]common.TextureStagingData),
		queries:       make(map[renderer.QueryHandle]*query),
		uniforms:      make(map[int]renderer.BufferHandle),
		textureBinds:  make(map[int]int),
		bufferWrites:  make(map[renderer.BufferHandle]int),
		scriptedTimes: make(map[string]uint64),
		timerQueries:  true,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *recorder) handle() uint32 {
	r.nextHandle++
	return r.nextHandle
}

func (r *recorder) log(op Op, target int, value uint32) {
	r.commands = append(r.commands, Command{Op: op, Target: target, Value: value})
}

func (r *recorder) BeginFrame() error {
	if r.inFrame {
		return errors.New("previous frame not ended")
	}
	r.inFrame = true
	r.log(OpBeginFrame, r.frames, 0)
	return nil
}

func (r *recorder) EndFrame() error {
	if !r.inFrame {
		return errors.New("no frame in progress")
	}
	r.inFrame = false
	r.log(OpEndFrame, r.frames, 0)
	r.frames++
	return nil
}

func (r *recorder) CreateBuffer(label string, usage renderer.BufferUsage, size int) (renderer.BufferHandle, error) {
	if size <= 0 {
		return 0, fmt.Errorf("buffer %q: invalid size %d", label, size)
	}
	h := renderer.BufferHandle(r.handle())
	r.buffers[h] = &buffer{label: label, usage: usage, size: size, data: make([]byte, size)}
	return h, nil
}

func (r *recorder) WriteBuffer(buf renderer.BufferHandle, data []byte) error {
	b, ok := r.buffers[buf]
	if !ok {
		return fmt.Errorf("write to buffer %d: %w", buf, ErrUnknownBuffer)
	}
	if len(data) > b.size {
		return fmt.Errorf("write of %d bytes to %q (%d bytes): %w", len(data), b.label, b.size, ErrBufferOverflow)
	}
	copy(b.data, data)
	r.bufferWrites[buf]++
	r.log(OpWriteBuffer, int(buf), uint32(len(data)))
	return nil
}

func (r *recorder) BindUniformBuffer(slot int, buf renderer.BufferHandle) {
	r.uniforms[slot] = buf
	r.log(OpBindUniform, slot, uint32(buf))
}

func (r *recorder) BindVertexStreams(streams []renderer.VertexStream, indices renderer.BufferHandle) {
	r.streams = append(r.streams[:0], streams...)
	r.indexBuffer = indices
	r.log(OpBindStreams, len(streams), uint32(indices))
}

func (r *recorder) CreateProgram(desc renderer.ProgramDescriptor) (renderer.ProgramHandle, error) {
	if r.programCheck != nil {
		if err := r.programCheck(desc); err != nil {
			return 0, err
		}
	}
	h := renderer.ProgramHandle(r.handle())
	r.programs[h] = desc
	r.programLog = append(r.programLog, desc)
	return h, nil
}

func (r *recorder) UseProgram(p renderer.ProgramHandle) {
	r.program = p
	r.programBinds++
	r.log(OpUseProgram, 0, uint32(p))
}

func (r *recorder) CreateTexture(label string, data common.TextureStagingData) (renderer.TextureHandle, error) {
	if int(data.Width*data.Height*4) != len(data.Pixels) {
		return 0, fmt.Errorf("texture %q: %d bytes for %dx%d RGBA", label, len(data.Pixels), data.Width, data.Height)
	}
	h := renderer.TextureHandle(r.handle())
	r.textures[h] = data
	return h, nil
}

func (r *recorder) BindTexture(unit int, tex renderer.TextureHandle) {
	if unit >= 0 && unit < MaxTextureUnits {
		r.boundTexture[unit] = tex
	}
	r.textureBinds[unit]++
	r.log(OpBindTexture, unit, uint32(tex))
}

func (r *recorder) Clear(flags renderer.ClearFlags, color [4]float32) {
	r.clears = append(r.clears, ClearCall{Flags: flags, Color: color})
	r.log(OpClear, int(flags), 0)
}

func (r *recorder) DrawIndexed(indexCount, firstIndex, baseVertex int) {
	r.draw(false, indexCount, firstIndex, 1, baseVertex)
	r.log(OpDraw, indexCount, uint32(r.program))
}

func (r *recorder) DrawIndexedInstanced(indexCount, firstIndex, instanceCount, baseVertex int) {
	r.draw(true, indexCount, firstIndex, instanceCount, baseVertex)
	r.log(OpDrawInstanced, instanceCount, uint32(r.program))
}

func (r *recorder) draw(instanced bool, indexCount, firstIndex, instanceCount, baseVertex int) {
	d := DrawCall{
		Instanced:     instanced,
		Program:       r.program,
		IndexCount:    indexCount,
		FirstIndex:    firstIndex,
		InstanceCount: instanceCount,
		BaseVertex:    baseVertex,
		Textures:      r.boundTexture,
	}
	if b, ok := r.buffers[r.uniforms[r.snapshotSlot]]; ok {
		d.Snapshot = append([]byte(nil), b.data...)
	}
	r.draws = append(r.draws, d)
}

func (r *recorder) CreateTimerQuery(label string) (renderer.QueryHandle, error) {
	if !r.timerQueries {
		return 0, ErrTimerQueriesUnsupported
	}
	h := renderer.QueryHandle(r.handle())
	r.queries[h] = &query{label: label}
	return h, nil
}

func (r *recorder) BeginTimerQuery(q renderer.QueryHandle) {
	if qq, ok := r.queries[q]; ok {
		qq.ended = false
	}
	r.log(OpBeginQuery, int(q), 0)
}

func (r *recorder) EndTimerQuery(q renderer.QueryHandle) {
	qq, ok := r.queries[q]
	if !ok {
		return
	}
	qq.ended = true
	qq.readyAt = r.frames + r.queryLatency
	switch {
	case r.queryTimer != nil:
		qq.elapsed = r.queryTimer(qq.label, r.frames)
	default:
		qq.elapsed = r.scriptedTimes[qq.label]
	}
	r.log(OpEndQuery, int(q), 0)
}

func (r *recorder) TimerQueryResult(q renderer.QueryHandle) (uint64, bool) {
	qq, ok := r.queries[q]
	if !ok || !qq.ended || r.frames < qq.readyAt {
		return 0, false
	}
	return qq.elapsed, true
}

func (r *recorder) ReleaseBuffer(buf renderer.BufferHandle) {
	delete(r.buffers, buf)
}

func (r *recorder) ReleaseProgram(p renderer.ProgramHandle) {
	delete(r.programs, p)
}

func (r *recorder) ReleaseTexture(tex renderer.TextureHandle) {
	delete(r.textures, tex)
}

func (r *recorder) ReleaseQuery(q renderer.QueryHandle) {
	delete(r.queries, q)
}

func (r *recorder) Commands() []Command {
	return r.commands
}

func (r *recorder) Draws() []DrawCall {
	return r.draws
}

func (r *recorder) Clears() []ClearCall {
	return r.clears
}

func (r *recorder) Programs() []renderer.ProgramDescriptor {
	return r.programLog
}

func (r *recorder) ProgramBinds() int {
	return r.programBinds
}

func (r *recorder) TextureBinds(unit int) int {
	return r.textureBinds[unit]
}

func (r *recorder) BufferWrites(buf renderer.BufferHandle) int {
	return r.bufferWrites[buf]
}

func (r *recorder) BufferData(buf renderer.BufferHandle) []byte {
	b, ok := r.buffers[buf]
	if !ok {
		return nil
	}
	return append([]byte(nil), b.data...)
}

func (r *recorder) BufferLabel(buf renderer.BufferHandle) string {
	if b, ok := r.buffers[buf]; ok {
		return b.label
	}
	return ""
}

func (r *recorder) BoundUniform(slot int) renderer.BufferHandle {
	return r.uniforms[slot]
}

func (r *recorder) BoundStreams() ([]renderer.VertexStream, renderer.BufferHandle) {
	return r.streams, r.indexBuffer
}

func (r *recorder) Frames() int {
	return r.frames
}

func (r *recorder) LiveBuffers() int {
	return len(r.buffers)
}

func (r *recorder) SetQueryElapsed(label string, ns uint64) {
	r.scriptedTimes[label] = ns
}

func (r *recorder) Reset() {
	r.commands = nil
	r.draws = nil
	r.clears = nil
	r.programBinds = 0
	r.textureBinds = make(map[int]int)
	r.bufferWrites = make(map[renderer.BufferHandle]int)
}
