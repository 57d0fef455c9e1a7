package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-batch/common"
)

const (
	// uniformAlignment is the dynamic offset alignment WebGPU guarantees for uniform buffers.
	uniformAlignment = 256

	// DefaultUniformVersions is the number of versions each uniform buffer ring holds.
	DefaultUniformVersions = 64

	maxUniformSlots = 8
	maxTextureUnits = 8

	timestampBytes = 16
)

// vertexStreamFormats is the fixed attribute layout of every program: position, normal, tangent, texcoord.
var vertexStreamFormats = [...]struct {
	format wgpu.VertexFormat
	stride uint64
}{
	{wgpu.VertexFormatFloat32x3, 12},
	{wgpu.VertexFormatFloat32x3, 12},
	{wgpu.VertexFormatFloat32x4, 16},
	{wgpu.VertexFormatFloat32x2, 8},
}

type (
	uniformKey [maxUniformSlots]BufferHandle
	textureKey [maxTextureUnits]TextureHandle
)

type wgpuBuffer struct {
	label  string
	usage  BufferUsage
	buffer *wgpu.Buffer
	size   int

	// Uniform buffers are rings of versions so every write inside one submission stays distinct.
	stride   uint64
	versions int
	cursor   int
	pending  int
}

type wgpuProgram struct {
	label    string
	vertex   *wgpu.ShaderModule
	fragment *wgpu.ShaderModule
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.RenderPipeline
}

type wgpuTexture struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

type queryState int

const (
	queryIdle queryState = iota
	queryRecording
	queryEnded
	queryMapping
	queryMapped
	queryReady
)

type wgpuQuery struct {
	label   string
	set     *wgpu.QuerySet
	resolve *wgpu.Buffer
	read    *wgpu.Buffer
	state   queryState
	elapsed uint64
}

type wgpuRendererBackendImpl struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat    *wgpu.TextureFormat
	msaaTexture      *wgpu.Texture
	msaaTextureView  *wgpu.TextureView
	depthTexture     *wgpu.Texture
	depthTextureView *wgpu.TextureView
	width, height    int

	presentMode          wgpu.PresentMode
	sampleCount          MSAASampleCount
	forceFallbackAdapter bool
	uniformVersions      int
	timestamps           bool

	nextHandle uint32
	buffers    map[BufferHandle]*wgpuBuffer
	programs   map[ProgramHandle]*wgpuProgram
	textures   map[TextureHandle]*wgpuTexture
	queries    map[QueryHandle]*wgpuQuery

	// Layouts shared by every program, built from the first program's binding table.
	uniformBlocks []UniformBlockBinding
	samplers      []SamplerBinding
	uniformLayout *wgpu.BindGroupLayout
	textureLayout *wgpu.BindGroupLayout
	sampler       *wgpu.Sampler
	fallback      *wgpuTexture
	uniformGroups map[uniformKey]*wgpu.BindGroup
	textureGroups map[textureKey]*wgpu.BindGroup
	offsets       []uint32

	uniforms      uniformKey
	streams       []VertexStream
	indexBuffer   BufferHandle
	program       ProgramHandle
	boundTextures textureKey

	// Frame state. A frame may span several render passes and submissions.
	frameEncoder  *wgpu.CommandEncoder
	framePass     *wgpu.RenderPassEncoder
	frameSurface  *wgpu.Texture
	frameView     *wgpu.TextureView
	passPipeline  *wgpu.RenderPipeline
	passTextures  *wgpu.BindGroup
	streamsDirty  bool
	endedQueries  []*wgpuQuery
	warnedUnbound bool
}

var _ Renderer = &wgpuRendererBackendImpl{}

func newWGPURendererBackend() *wgpuRendererBackendImpl {
	return &wgpuRendererBackendImpl{
		mu:              &sync.Mutex{},
		presentMode:     wgpu.PresentModeFifo,
		sampleCount:     MSAAOff,
		uniformVersions: DefaultUniformVersions,
		buffers:         make(map[BufferHandle]*wgpuBuffer),
		programs:        make(map[ProgramHandle]*wgpuProgram),
		textures:        make(map[TextureHandle]*wgpuTexture),
		queries:         make(map[QueryHandle]*wgpuQuery),
		uniformGroups:   make(map[uniformKey]*wgpu.BindGroup),
		textureGroups:   make(map[textureKey]*wgpu.BindGroup),
	}
}

// init acquires the adapter and device. Failures here are unrecoverable and panic.
func (b *wgpuRendererBackendImpl) init(surfaceDescriptor *wgpu.SurfaceDescriptor) {
	runtime.LockOSThread()
	b.instance = wgpu.CreateInstance(nil)
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		panic(err)
	}
	b.adapter = a

	var features []wgpu.FeatureName
	if a.HasFeature(wgpu.FeatureNameTimestampQuery) {
		features = append(features, wgpu.FeatureNameTimestampQuery)
		b.timestamps = true
	}

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Main Device",
		RequiredFeatures: features,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		panic(err)
	}
	b.device = d
	b.queue = d.GetQueue()

	log.Printf("[WGPU] device ready (timestamp queries: %t, msaa: %dx, uniform versions: %d)",
		b.timestamps, b.sampleCount, b.uniformVersions)
}

func (b *wgpuRendererBackendImpl) handle() uint32 {
	b.nextHandle++
	return b.nextHandle
}

func (b *wgpuRendererBackendImpl) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configureSurface(width, height)
}

func (b *wgpuRendererBackendImpl) configureSurface(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	b.width, b.height = width, height

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	b.releaseTargets()
	count := uint32(b.sampleCount)
	size := wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}

	if count > 1 {
		// The pass draws into the MSAA texture and resolves into the swapchain view.
		tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "MSAA Texture",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   count,
			Dimension:     wgpu.TextureDimension2D,
			Format:        *b.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			panic(err)
		}
		b.msaaTexture = tex
		b.msaaTextureView, err = tex.CreateView(nil)
		if err != nil {
			panic(err)
		}
	}

	// Depth sample count must match the color attachment.
	depth, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Texture",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   count,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		panic(err)
	}
	b.depthTexture = depth
	b.depthTextureView, err = depth.CreateView(nil)
	if err != nil {
		panic(err)
	}
}

func (b *wgpuRendererBackendImpl) releaseTargets() {
	if b.msaaTextureView != nil {
		b.msaaTextureView.Release()
		b.msaaTexture.Release()
		b.msaaTextureView, b.msaaTexture = nil, nil
	}
	if b.depthTextureView != nil {
		b.depthTextureView.Release()
		b.depthTexture.Release()
		b.depthTextureView, b.depthTexture = nil, nil
	}
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
	if b.device != nil {
		b.configureSurface(b.width, b.height)
	}
}

func (b *wgpuRendererBackendImpl) TimerQueriesSupported() bool {
	return b.timestamps
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface != nil {
		return errors.New("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}
	b.frameSurface = surfaceTexture
	b.frameView = view

	if err := b.openEncoder(); err != nil {
		b.releaseFrame()
		return err
	}
	// Swapchain contents are undefined, so every frame starts from a cleared target.
	b.beginPass(ClearColor|ClearDepth, [4]float32{0, 0, 0, 1})
	return nil
}

func (b *wgpuRendererBackendImpl) openEncoder() error {
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.frameEncoder = encoder
	return nil
}

// beginPass opens a render pass on the frame encoder, clearing the selected aspects and loading
// the rest. Pass-scoped state must be set again afterwards.
func (b *wgpuRendererBackendImpl) beginPass(flags ClearFlags, color [4]float32) {
	colorView, resolve := b.frameView, (*wgpu.TextureView)(nil)
	if b.sampleCount > 1 {
		colorView, resolve = b.msaaTextureView, b.frameView
	}
	colorLoad, depthLoad := wgpu.LoadOpLoad, wgpu.LoadOpLoad
	if flags&ClearColor != 0 {
		colorLoad = wgpu.LoadOpClear
	}
	if flags&ClearDepth != 0 {
		depthLoad = wgpu.LoadOpClear
	}

	b.framePass = b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:          colorView,
				ResolveTarget: resolve,
				LoadOp:        colorLoad,
				StoreOp:       wgpu.StoreOpStore,
				ClearValue: wgpu.Color{
					R: float64(color[0]), G: float64(color[1]), B: float64(color[2]), A: float64(color[3]),
				},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthTextureView,
			DepthLoadOp:     depthLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	b.passPipeline = nil
	b.passTextures = nil
	b.streamsDirty = true
}

func (b *wgpuRendererBackendImpl) endPass() {
	if b.framePass == nil {
		return
	}
	b.framePass.End()
	b.framePass = nil
}

// submit finishes the frame encoder, submits it and starts readback of the queries it resolved.
func (b *wgpuRendererBackendImpl) submit() error {
	b.endPass()
	commandBuffer, err := b.frameEncoder.Finish(nil)
	b.frameEncoder.Release()
	b.frameEncoder = nil
	if err != nil {
		return fmt.Errorf("finish command encoder: %w", err)
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	for _, q := range b.endedQueries {
		b.mapQuery(q)
	}
	b.endedQueries = b.endedQueries[:0]
	for _, buf := range b.buffers {
		buf.pending = 0
	}
	return nil
}

// flushFrame submits the work recorded so far and continues the frame on a new encoder.
func (b *wgpuRendererBackendImpl) flushFrame() error {
	if err := b.submit(); err != nil {
		return err
	}
	if err := b.openEncoder(); err != nil {
		return err
	}
	b.beginPass(0, [4]float32{})
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return errors.New("no frame in progress")
	}
	err := b.submit()
	if err == nil {
		b.surface.Present()
	}
	b.releaseFrame()
	return err
}

func (b *wgpuRendererBackendImpl) releaseFrame() {
	if b.frameEncoder != nil {
		b.endPass()
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, usage BufferUsage, size int) (BufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size <= 0 {
		return 0, fmt.Errorf("buffer %q: invalid size %d", label, size)
	}

	buf := &wgpuBuffer{label: label, usage: usage, size: size, versions: 1}
	allocation := alignUp(uint64(size), 4)
	var flags wgpu.BufferUsage
	switch usage {
	case BufferUsageVertex:
		flags = wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst
	case BufferUsageIndex:
		flags = wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst
	case BufferUsageUniform:
		flags = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
		buf.stride = alignUp(uint64(size), uniformAlignment)
		buf.versions = b.uniformVersions
		allocation = buf.stride * uint64(buf.versions)
	default:
		return 0, fmt.Errorf("buffer %q: unknown usage %v", label, usage)
	}

	created, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  allocation,
		Usage: flags,
	})
	if err != nil {
		return 0, fmt.Errorf("create buffer %q: %w", label, err)
	}
	buf.buffer = created

	h := BufferHandle(b.handle())
	b.buffers[h] = buf
	return h, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(h BufferHandle, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[h]
	if !ok {
		return fmt.Errorf("write to buffer %d: unknown buffer", h)
	}
	if len(data) > buf.size {
		return fmt.Errorf("write of %d bytes to %q (%d bytes): exceeds capacity", len(data), buf.label, buf.size)
	}
	if len(data) == 0 {
		return nil
	}
	// Queue writes must be a multiple of four bytes.
	if rem := len(data) % 4; rem != 0 {
		data = append(append(make([]byte, 0, len(data)+4-rem), data...), make([]byte, 4-rem)...)
	}

	var offset uint64
	if buf.usage == BufferUsageUniform {
		if buf.pending >= buf.versions && b.frameEncoder != nil {
			if err := b.flushFrame(); err != nil {
				return err
			}
		}
		buf.cursor = (buf.cursor + 1) % buf.versions
		buf.pending++
		offset = uint64(buf.cursor) * buf.stride
	}
	b.queue.WriteBuffer(buf.buffer, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) BindUniformBuffer(slot int, buf BufferHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot >= 0 && slot < maxUniformSlots {
		b.uniforms[slot] = buf
	}
}

func (b *wgpuRendererBackendImpl) BindVertexStreams(streams []VertexStream, indices BufferHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = append(b.streams[:0], streams...)
	b.indexBuffer = indices
	b.streamsDirty = true
}

// ensureLayouts builds the bind group layouts from the first program's binding table. Every
// program shares the same table.
func (b *wgpuRendererBackendImpl) ensureLayouts(desc ProgramDescriptor) error {
	if b.uniformLayout != nil {
		return nil
	}

	blocks := append([]UniformBlockBinding(nil), desc.UniformBlocks...)
	// Dynamic offsets are passed in binding order.
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Slot < blocks[j].Slot })
	visibility := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment

	uniformEntries := make([]wgpu.BindGroupLayoutEntry, 0, len(blocks))
	for _, blk := range blocks {
		if blk.Slot < 0 || blk.Slot >= maxUniformSlots {
			return fmt.Errorf("uniform block %s: slot %d out of range", blk.Name, blk.Slot)
		}
		uniformEntries = append(uniformEntries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(blk.Slot),
			Visibility: visibility,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
			},
		})
	}
	uniformLayout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Uniform Blocks",
		Entries: uniformEntries,
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}

	textureEntries := make([]wgpu.BindGroupLayoutEntry, 0, 2*len(desc.Samplers))
	for _, s := range desc.Samplers {
		if s.Unit < 0 || s.Unit >= maxTextureUnits {
			uniformLayout.Release()
			return fmt.Errorf("sampler %s: unit %d out of range", s.Name, s.Unit)
		}
		textureEntries = append(textureEntries,
			wgpu.BindGroupLayoutEntry{
				Binding:    uint32(2 * s.Unit),
				Visibility: visibility,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			wgpu.BindGroupLayoutEntry{
				Binding:    uint32(2*s.Unit + 1),
				Visibility: visibility,
				Sampler: wgpu.SamplerBindingLayout{
					Type: wgpu.SamplerBindingTypeFiltering,
				},
			},
		)
	}
	textureLayout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Texture Units",
		Entries: textureEntries,
	})
	if err != nil {
		uniformLayout.Release()
		return fmt.Errorf("create texture layout: %w", err)
	}

	sampler, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Texture Unit Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		uniformLayout.Release()
		textureLayout.Release()
		return fmt.Errorf("create sampler: %w", err)
	}

	b.uniformBlocks = blocks
	b.samplers = append([]SamplerBinding(nil), desc.Samplers...)
	b.uniformLayout = uniformLayout
	b.textureLayout = textureLayout
	b.sampler = sampler
	return nil
}

func (b *wgpuRendererBackendImpl) CreateProgram(desc ProgramDescriptor) (ProgramHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureLayouts(desc); err != nil {
		return 0, err
	}

	vs, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + " Vertex",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.VertexSource},
	})
	if err != nil {
		return 0, fmt.Errorf("vertex module: %w", err)
	}
	fs, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + " Fragment",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.FragmentSource},
	})
	if err != nil {
		vs.Release()
		return 0, fmt.Errorf("fragment module: %w", err)
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.uniformLayout, b.textureLayout},
	})
	if err != nil {
		vs.Release()
		fs.Release()
		return 0, err
	}

	vertexLayouts := make([]wgpu.VertexBufferLayout, len(vertexStreamFormats))
	for slot, f := range vertexStreamFormats {
		vertexLayouts[slot] = wgpu.VertexBufferLayout{
			ArrayStride: f.stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: f.format, Offset: 0, ShaderLocation: uint32(slot)},
			},
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    vertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.FragmentEntryPoint,
			Targets: []wgpu.ColorTargetState{
				{Format: *b.surfaceFormat, WriteMask: wgpu.ColorWriteMaskAll},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(b.sampleCount),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: true,
			// LessEqual so the full-screen quad at the far plane passes against a cleared depth of 1.
			DepthCompare: wgpu.CompareFunctionLessEqual,
			StencilFront: wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:  wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
	})
	if err != nil {
		layout.Release()
		vs.Release()
		fs.Release()
		return 0, err
	}

	h := ProgramHandle(b.handle())
	b.programs[h] = &wgpuProgram{label: desc.Label, vertex: vs, fragment: fs, layout: layout, pipeline: created}
	return h, nil
}

func (b *wgpuRendererBackendImpl) UseProgram(p ProgramHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.program = p
}

func (b *wgpuRendererBackendImpl) CreateTexture(label string, data common.TextureStagingData) (TextureHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.createTexture(label, data)
	if err != nil {
		return 0, err
	}
	h := TextureHandle(b.handle())
	b.textures[h] = tex
	return h, nil
}

func (b *wgpuRendererBackendImpl) createTexture(label string, data common.TextureStagingData) (*wgpuTexture, error) {
	if int(data.Width*data.Height*4) != len(data.Pixels) {
		return nil, fmt.Errorf("texture %q: %d bytes for %dx%d RGBA", label, len(data.Pixels), data.Width, data.Height)
	}

	size := wgpu.Extent3D{Width: data.Width, Height: data.Height, DepthOrArrayLayers: 1}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&size,
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTexture{texture: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) BindTexture(unit int, tex TextureHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if unit >= 0 && unit < maxTextureUnits {
		b.boundTextures[unit] = tex
	}
}

func (b *wgpuRendererBackendImpl) Clear(flags ClearFlags, color [4]float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil || flags == 0 {
		return
	}
	b.endPass()
	b.beginPass(flags, color)
}

func (b *wgpuRendererBackendImpl) DrawIndexed(indexCount, firstIndex, baseVertex int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prepareDraw() {
		b.framePass.DrawIndexed(uint32(indexCount), 1, uint32(firstIndex), int32(baseVertex), 0)
	}
}

func (b *wgpuRendererBackendImpl) DrawIndexedInstanced(indexCount, firstIndex, instanceCount, baseVertex int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prepareDraw() {
		b.framePass.DrawIndexed(uint32(indexCount), uint32(instanceCount), uint32(firstIndex), int32(baseVertex), 0)
	}
}

// prepareDraw applies the bound program, uniform versions, textures and streams to the current
// pass. It reports false when the draw cannot be issued.
func (b *wgpuRendererBackendImpl) prepareDraw() bool {
	if b.framePass == nil {
		return false
	}
	prog, ok := b.programs[b.program]
	if !ok {
		return false
	}

	uniforms, err := b.uniformGroup()
	if err != nil {
		if !b.warnedUnbound {
			log.Printf("[WGPU] skipping draws: %v", err)
			b.warnedUnbound = true
		}
		return false
	}
	textures, err := b.textureGroup()
	if err != nil {
		log.Printf("[WGPU] skipping draw: %v", err)
		return false
	}

	if prog.pipeline != b.passPipeline {
		b.framePass.SetPipeline(prog.pipeline)
		b.passPipeline = prog.pipeline
	}
	b.framePass.SetBindGroup(0, uniforms, b.offsets)
	if textures != b.passTextures {
		b.framePass.SetBindGroup(1, textures, nil)
		b.passTextures = textures
	}

	if b.streamsDirty {
		for _, s := range b.streams {
			if buf, ok := b.buffers[s.Buffer]; ok {
				b.framePass.SetVertexBuffer(uint32(s.Slot), buf.buffer, 0, wgpu.WholeSize)
			}
		}
		if buf, ok := b.buffers[b.indexBuffer]; ok {
			b.framePass.SetIndexBuffer(buf.buffer, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
		}
		b.streamsDirty = false
	}
	return true
}

// uniformGroup returns the bind group of the bound uniform buffers and fills b.offsets with the
// offset of each buffer's latest version.
func (b *wgpuRendererBackendImpl) uniformGroup() (*wgpu.BindGroup, error) {
	b.offsets = b.offsets[:0]
	for _, blk := range b.uniformBlocks {
		buf, ok := b.buffers[b.uniforms[blk.Slot]]
		if !ok {
			return nil, fmt.Errorf("uniform block %s has no buffer bound at slot %d", blk.Name, blk.Slot)
		}
		b.offsets = append(b.offsets, uint32(uint64(buf.cursor)*buf.stride))
	}

	if group, ok := b.uniformGroups[b.uniforms]; ok {
		return group, nil
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(b.uniformBlocks))
	for _, blk := range b.uniformBlocks {
		buf := b.buffers[b.uniforms[blk.Slot]]
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(blk.Slot),
			Buffer:  buf.buffer,
			Offset:  0,
			Size:    uint64(buf.size),
		})
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Uniform Blocks",
		Layout:  b.uniformLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	b.uniformGroups[b.uniforms] = group
	return group, nil
}

// textureGroup returns the bind group of the bound textures. Empty units read a white texel.
func (b *wgpuRendererBackendImpl) textureGroup() (*wgpu.BindGroup, error) {
	if group, ok := b.textureGroups[b.boundTextures]; ok {
		return group, nil
	}

	if b.fallback == nil {
		fallback, err := b.createTexture("Fallback Texture", common.TextureStagingData{
			Width: 1, Height: 1, Pixels: []byte{255, 255, 255, 255},
		})
		if err != nil {
			return nil, fmt.Errorf("create fallback texture: %w", err)
		}
		b.fallback = fallback
	}

	entries := make([]wgpu.BindGroupEntry, 0, 2*len(b.samplers))
	for _, s := range b.samplers {
		view := b.fallback.view
		if tex, ok := b.textures[b.boundTextures[s.Unit]]; ok {
			view = tex.view
		}
		entries = append(entries,
			wgpu.BindGroupEntry{Binding: uint32(2 * s.Unit), TextureView: view},
			wgpu.BindGroupEntry{Binding: uint32(2*s.Unit + 1), Sampler: b.sampler},
		)
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Texture Units",
		Layout:  b.textureLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	b.textureGroups[b.boundTextures] = group
	return group, nil
}

func (b *wgpuRendererBackendImpl) CreateTimerQuery(label string) (QueryHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.timestamps {
		return 0, ErrTimerQueriesUnsupported
	}

	set, err := b.device.CreateQuerySet(&wgpu.QuerySetDescriptor{
		Label: label,
		Type:  wgpu.QueryTypeTimestamp,
		Count: 2,
	})
	if err != nil {
		return 0, fmt.Errorf("create query set %q: %w", label, err)
	}
	resolve, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Resolve",
		Size:  timestampBytes,
		Usage: wgpu.BufferUsageQueryResolve | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		set.Release()
		return 0, err
	}
	read, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Readback",
		Size:  timestampBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		set.Release()
		resolve.Release()
		return 0, err
	}

	h := QueryHandle(b.handle())
	b.queries[h] = &wgpuQuery{label: label, set: set, resolve: resolve, read: read}
	return h, nil
}

// BeginTimerQuery writes the start timestamp between render passes, splitting the current pass.
func (b *wgpuRendererBackendImpl) BeginTimerQuery(h QueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queries[h]
	if !ok || b.frameEncoder == nil {
		return
	}
	if q.state == queryMapping || q.state == queryMapped {
		// An unread result is discarded when the query is reused.
		q.read.Unmap()
	}

	b.endPass()
	b.frameEncoder.WriteTimestamp(q.set, 0)
	b.beginPass(0, [4]float32{})
	q.state = queryRecording
}

func (b *wgpuRendererBackendImpl) EndTimerQuery(h QueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queries[h]
	if !ok || q.state != queryRecording || b.frameEncoder == nil {
		return
	}

	b.endPass()
	b.frameEncoder.WriteTimestamp(q.set, 1)
	b.frameEncoder.ResolveQuerySet(q.set, 0, 2, q.resolve, 0)
	b.frameEncoder.CopyBufferToBuffer(q.resolve, 0, q.read, 0, timestampBytes)
	b.beginPass(0, [4]float32{})
	q.state = queryEnded
	b.endedQueries = append(b.endedQueries, q)
}

func (b *wgpuRendererBackendImpl) mapQuery(q *wgpuQuery) {
	q.state = queryMapping
	err := q.read.MapAsync(wgpu.MapModeRead, 0, timestampBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status == wgpu.BufferMapAsyncStatusSuccess {
			q.state = queryMapped
		} else {
			q.state = queryIdle
		}
	})
	if err != nil {
		log.Printf("[WGPU] map query %s: %v", q.label, err)
		q.state = queryIdle
	}
}

// TimerQueryResult polls the device without waiting. Timestamp ticks are treated as nanoseconds.
func (b *wgpuRendererBackendImpl) TimerQueryResult(h QueryHandle) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queries[h]
	if !ok {
		return 0, false
	}
	if q.state == queryMapping {
		b.device.Poll(false, nil)
	}
	if q.state == queryMapped {
		data := q.read.GetMappedRange(0, timestampBytes)
		start := binary.LittleEndian.Uint64(data[0:8])
		end := binary.LittleEndian.Uint64(data[8:16])
		q.elapsed = 0
		if end > start {
			q.elapsed = end - start
		}
		q.read.Unmap()
		q.state = queryReady
	}
	if q.state == queryReady {
		return q.elapsed, true
	}
	return 0, false
}

func (b *wgpuRendererBackendImpl) ReleaseBuffer(h BufferHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[h]
	if !ok {
		return
	}
	if buf.usage == BufferUsageUniform {
		for key, group := range b.uniformGroups {
			if containsHandle(key[:], h) {
				group.Release()
				delete(b.uniformGroups, key)
			}
		}
	}
	buf.buffer.Release()
	delete(b.buffers, h)
}

func (b *wgpuRendererBackendImpl) ReleaseProgram(h ProgramHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.programs[h]
	if !ok {
		return
	}
	if b.passPipeline == p.pipeline {
		b.passPipeline = nil
	}
	p.pipeline.Release()
	p.layout.Release()
	p.vertex.Release()
	p.fragment.Release()
	delete(b.programs, h)
}

func (b *wgpuRendererBackendImpl) ReleaseTexture(h TextureHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tex, ok := b.textures[h]
	if !ok {
		return
	}
	for key, group := range b.textureGroups {
		if containsHandle(key[:], h) {
			if b.passTextures == group {
				b.passTextures = nil
			}
			group.Release()
			delete(b.textureGroups, key)
		}
	}
	tex.view.Release()
	tex.texture.Release()
	delete(b.textures, h)
}

func (b *wgpuRendererBackendImpl) ReleaseQuery(h QueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queries[h]
	if !ok {
		return
	}
	if q.state == queryMapping || q.state == queryMapped {
		q.read.Unmap()
	}
	q.set.Release()
	q.resolve.Release()
	q.read.Release()
	delete(b.queries, h)
}

func (b *wgpuRendererBackendImpl) Release() {
	for h := range b.queries {
		b.ReleaseQuery(h)
	}
	for h := range b.programs {
		b.ReleaseProgram(h)
	}
	for h := range b.textures {
		b.ReleaseTexture(h)
	}
	for h := range b.buffers {
		b.ReleaseBuffer(h)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrame()
	for _, group := range b.textureGroups {
		group.Release()
	}
	clear(b.textureGroups)
	if b.fallback != nil {
		b.fallback.view.Release()
		b.fallback.texture.Release()
		b.fallback = nil
	}
	if b.sampler != nil {
		b.sampler.Release()
		b.uniformLayout.Release()
		b.textureLayout.Release()
		b.sampler, b.uniformLayout, b.textureLayout = nil, nil, nil
	}
	b.releaseTargets()
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
}

func containsHandle[T comparable](handles []T, h T) bool {
	for _, v := range handles {
		if v == h {
			return true
		}
	}
	return false
}

func alignUp(n, alignment uint64) uint64 {
	return (n + alignment - 1) / alignment * alignment
}
