package render

import (
	"errors"
	"fmt"
	"log"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/alcor-engine/alcor/queues"
)

// Platform is the contract the windowing collaborator has to fulfill. The
// core never manages window geometry or OS events itself; it only consumes
// what the platform reports.
type Platform interface {
	// ProcAddr returns the vkGetInstanceProcAddr pointer used to load the
	// Vulkan library.
	ProcAddr() unsafe.Pointer

	// RequiredExtensions lists the instance extensions the platform needs
	// for surface creation.
	RequiredExtensions() []string

	// CreateSurface creates the OS presentable surface for the window.
	CreateSurface(instance vk.Instance) (uintptr, error)

	// FramebufferSize reports the current drawable size in pixels.
	FramebufferSize() (width, height uint32)

	// PrePresentNotify is invoked immediately before every present call.
	// Some windowing backends require it for correct frame pacing.
	PrePresentNotify()
}

// Drawable records the draw commands of one frame. The target image is in
// color attachment layout when the callback runs and is transitioned to
// the presentable layout afterwards.
type Drawable func(cmd vk.CommandBuffer, sc *Swapchain, imageIndex uint32)

// Context groups the handles whose destruction order is fixed: Device
// before Surface before Instance, the reverse of construction. Owning the
// sequence in one place keeps the ordering requirement explicit instead of
// relying on callers getting it right.
type Context struct {
	Instance *Instance
	Surface  *Surface
	Device   *Device
}

// Destroy tears the context down in reverse construction order.
func (c *Context) Destroy() {
	if c.Device != nil {
		c.Device.Destroy()
		c.Device = nil
	}
	if c.Surface != nil {
		c.Surface.Destroy()
		c.Surface = nil
	}
	if c.Instance != nil {
		c.Instance.Destroy()
		c.Instance = nil
	}
}

// Renderer is the composition root of the presentation core. It owns the
// Context, the Swapchain, the Presenter and the command recording
// resources, and exposes a single Render entry point to the event loop.
type Renderer struct {
	cfg      *Config
	platform Platform

	ctx       *Context
	swapchain *Swapchain
	presenter *Presenter

	commandPool    vk.CommandPool
	commandBuffers []vk.CommandBuffer

	drawable   Drawable
	clearColor [4]float32
}

// NewRenderer bootstraps the whole presentation stack against the given
// platform: instance, surface, adapter selection, logical device,
// swapchain, presenter and command recording resources, in that order.
func NewRenderer(cfg *Config, platform Platform) (*Renderer, error) {
	instance, err := NewInstance(cfg, platform.ProcAddr(), platform.RequiredExtensions())
	if err != nil {
		return nil, fmt.Errorf("creating instance: %w", err)
	}

	ctx := &Context{Instance: instance}

	surfacePtr, err := platform.CreateSurface(instance.Handle())
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("creating surface: %w", err)
	}
	ctx.Surface = NewSurface(instance, surfacePtr)

	reqs := DefaultRequirements()
	for _, ext := range cfg.deviceExtensions() {
		reqs.RequireExtension(ext)
	}
	for _, feature := range cfg.DeviceFeatures {
		reqs.RequireFeature(feature)
	}

	adapters, err := enumerateAdapters(instance.Handle(), ctx.Surface)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}

	adapter, queueFamily, err := Select(adapters, reqs)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}

	if cfg.Debug {
		indices := queues.FindIndices(adapter.QueueFamilies)
		log.Printf("selected adapter %q (score %d, graphics family %v, present family %v)",
			adapter.Name, Score(adapter), indices.Graphics.Get(), indices.Present.Get())
	}

	device, err := NewDevice(cfg, adapter, queueFamily, reqs.Extensions(), reqs.Features())
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	ctx.Device = device

	r := &Renderer{
		cfg:        cfg,
		platform:   platform,
		ctx:        ctx,
		clearColor: [4]float32{0, 0, 0, 1},
	}

	size := func() (uint32, uint32) {
		return platform.FramebufferSize()
	}

	r.swapchain, err = BuildSwapchain(device, ctx.Surface, size, nil)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	r.presenter, err = NewPresenter(device, r.swapchain, cfg.framesInFlight())
	if err != nil {
		r.Destroy()
		return nil, err
	}

	if err := r.createCommandResources(); err != nil {
		r.Destroy()
		return nil, err
	}

	return r, nil
}

// createCommandResources sets up the command pool and one resettable
// command buffer per frame in flight slot, so recording for a slot never
// races the GPU executing that slot's previous frame.
func (r *Renderer) createCommandResources() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: r.ctx.Device.QueueFamily(),
	}

	var commandPool vk.CommandPool
	res := vk.CreateCommandPool(r.ctx.Device.Handle(), &poolInfo, nil, &commandPool)
	if err := resultErr(res); err != nil {
		return fmt.Errorf("failed to create command pool: %w", err)
	}
	r.commandPool = commandPool

	frames := r.cfg.framesInFlight()
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        r.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(frames),
	}

	commandBuffers := make([]vk.CommandBuffer, frames)
	res = vk.AllocateCommandBuffers(r.ctx.Device.Handle(), &allocInfo, commandBuffers)
	if err := resultErr(res); err != nil {
		return fmt.Errorf("failed to allocate command buffers: %w", err)
	}
	r.commandBuffers = commandBuffers

	return nil
}

// SetDrawable registers the command sequence rendered into every frame.
// Without one the Renderer clears each frame to the configured color.
func (r *Renderer) SetDrawable(d Drawable) {
	r.drawable = d
}

// SetClearColor sets the RGBA color of the built-in clear.
func (r *Renderer) SetClearColor(color [4]float32) {
	r.clearColor = color
}

// Context returns the instance/surface/device composite.
func (r *Renderer) Context() *Context {
	return r.ctx
}

// Swapchain returns the current presentable image ring.
func (r *Renderer) Swapchain() *Swapchain {
	return r.swapchain
}

// Presenter returns the frame synchronizer.
func (r *Renderer) Presenter() *Presenter {
	return r.presenter
}

// Invalidate marks the swapchain stale, e.g. after a window resize
// notification. The rebuild happens after the next presented frame.
func (r *Renderer) Invalidate() {
	r.presenter.Invalidate()
}

// Render drives one full frame: acquire an image, record and submit the
// frame's commands, then present. A stale swapchain costs at most one
// dropped frame and is never reported as an error.
func (r *Renderer) Render() error {
	frame, err := r.presenter.Acquire()
	if errors.Is(err, errOutOfDate) {
		return nil
	}
	if err != nil {
		return err
	}

	cmd := r.commandBuffers[frame.Slot]
	vk.ResetCommandBuffer(cmd, 0)
	if err := r.recordFrame(cmd, frame.ImageIndex); err != nil {
		return fmt.Errorf("recording command buffer: %w", err)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{frame.Acquired},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(
				vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageTransferBit,
			),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{frame.RenderedGPU},
	}

	if err := r.ctx.Device.Submit(submitInfo, frame.RenderedCPU); err != nil {
		return &PresentError{Op: "queue submit", Err: err}
	}

	r.platform.PrePresentNotify()

	return r.presenter.Present(frame)
}

// recordFrame transitions the target image into a drawable layout, runs
// the registered drawable or the built-in clear and transitions the image
// into the presentable layout.
func (r *Renderer) recordFrame(cmd vk.CommandBuffer, imageIndex uint32) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}

	res := vk.BeginCommandBuffer(cmd, &beginInfo)
	if err := resultErr(res); err != nil {
		return fmt.Errorf("cannot begin command buffer: %w", err)
	}

	image := r.swapchain.Image(imageIndex)

	if r.drawable != nil {
		transitionImage(cmd, image,
			vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal)
		r.drawable(cmd, r.swapchain, imageIndex)
		transitionImage(cmd, image,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc)
	} else {
		transitionImage(cmd, image,
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
		r.recordClear(cmd, image)
		transitionImage(cmd, image,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)
	}

	if err := resultErr(vk.EndCommandBuffer(cmd)); err != nil {
		return fmt.Errorf("recording commands to buffer failed: %w", err)
	}

	return nil
}

func (r *Renderer) recordClear(cmd vk.CommandBuffer, image vk.Image) {
	var color vk.ClearColorValue
	floats := (*[4]float32)(unsafe.Pointer(&color))
	*floats = r.clearColor

	vk.CmdClearColorImage(
		cmd,
		image,
		vk.ImageLayoutTransferDstOptimal,
		&color,
		1,
		[]vk.ImageSubresourceRange{colorSubresourceRange()},
	)
}

// transitionImage records a pipeline barrier moving the image between the
// layouts of the supported presentation transitions.
func transitionImage(cmd vk.CommandBuffer, image vk.Image, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange:    colorSubresourceRange(),
	}

	var srcStage, dstStage vk.PipelineStageFlags

	switch {
	case oldLayout == vk.ImageLayoutUndefined &&
		newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	case oldLayout == vk.ImageLayoutTransferDstOptimal &&
		newLayout == vk.ImageLayoutPresentSrc:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessMemoryReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)

	case oldLayout == vk.ImageLayoutUndefined &&
		newLayout == vk.ImageLayoutColorAttachmentOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)

	case oldLayout == vk.ImageLayoutColorAttachmentOptimal &&
		newLayout == vk.ImageLayoutPresentSrc:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessMemoryReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}

	vk.CmdPipelineBarrier(
		cmd,
		srcStage, dstStage,
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)
}

func colorSubresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

// Destroy tears the Renderer down in reverse construction order: command
// resources, presenter, swapchain, then the context.
func (r *Renderer) Destroy() {
	if r.ctx == nil || r.ctx.Device == nil {
		if r.ctx != nil {
			r.ctx.Destroy()
		}
		return
	}

	if r.presenter != nil {
		r.presenter.Destroy()
		r.presenter = nil
	}

	if r.commandPool != vk.CommandPool(vk.NullHandle) {
		vk.DestroyCommandPool(r.ctx.Device.Handle(), r.commandPool, nil)
		r.commandPool = vk.CommandPool(vk.NullHandle)
	}
	r.commandBuffers = nil

	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}

	r.ctx.Destroy()
}
