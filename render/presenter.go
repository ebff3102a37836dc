package render

import (
	"errors"
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// Sync creates and operates the synchronization primitives the Presenter
// needs. The production implementation is the Device.
type Sync interface {
	NewSemaphore() (vk.Semaphore, error)
	NewFence(signaled bool) (vk.Fence, error)
	WaitFence(vk.Fence) error
	ResetFence(vk.Fence) error
	DestroySemaphore(vk.Semaphore)
	DestroyFence(vk.Fence)
	WaitIdle() error
}

// Target is the presentable image ring the Presenter drives. The
// production implementation is the Swapchain.
type Target interface {
	// Acquire returns the next image index. The second return is true when
	// the ring is suboptimal but the frame may still proceed.
	Acquire(signal vk.Semaphore) (uint32, bool, error)
	// Present displays the image once the wait semaphore signals. A true
	// return means the ring should be rebuilt.
	Present(wait vk.Semaphore, imageIndex uint32) (bool, error)
	Rebuild() error
	ImageCount() int
}

// frameSlot holds the synchronization primitives of one frame in flight.
type frameSlot struct {
	// acquired signals on the GPU once the slot's image is ready to be
	// rendered into.
	acquired vk.Semaphore

	// renderedGPU signals on the GPU once rendering finished; presentation
	// waits on it.
	renderedGPU vk.Semaphore

	// renderedCPU signals to the CPU once rendering finished; the slot may
	// not be reused before it fires.
	renderedCPU vk.Fence
}

// Frame is what Acquire hands to the caller: the image to render into and
// the primitives to wire into the queue submission. The submitted work
// must wait on Acquired and signal both RenderedGPU and RenderedCPU.
type Frame struct {
	// Slot is the frame in flight index the frame runs in.
	Slot int

	// ImageIndex is the swapchain image to render into.
	ImageIndex uint32

	Acquired    vk.Semaphore
	RenderedGPU vk.Semaphore
	RenderedCPU vk.Fence
}

// Presenter is the frame synchronizer. It owns the per frame in flight
// primitives, drives the acquire/submit/present protocol, tracks
// invalidation of the swapchain and triggers its rebuild.
//
// A single goroutine must drive Acquire and Present; the GPU runs as a
// free running execution engine coordinated purely through the primitives
// handed out in Frame.
type Presenter struct {
	sync   Sync
	target Target

	slots   []frameSlot
	current int

	// imagesInFlight maps an image index to the fence of the frame
	// currently rendering into it. A null fence means the image is free.
	imagesInFlight []vk.Fence

	invalid bool
}

// NewPresenter allocates the primitives for the requested number of frames
// in flight. The CPU side completion fences start out signaled so the
// first pass through a slot does not wait for a frame that was never
// submitted.
func NewPresenter(sync Sync, target Target, frames int) (*Presenter, error) {
	if frames < 1 {
		return nil, fmt.Errorf("frames in flight must be at least 1, got %d", frames)
	}

	p := &Presenter{
		sync:           sync,
		target:         target,
		imagesInFlight: make([]vk.Fence, target.ImageCount()),
	}

	for i := 0; i < frames; i++ {
		var (
			slot frameSlot
			err  error
		)

		if slot.acquired, err = sync.NewSemaphore(); err != nil {
			p.Destroy()
			return nil, fmt.Errorf("creating acquire semaphore %d: %w", i, err)
		}
		if slot.renderedGPU, err = sync.NewSemaphore(); err != nil {
			sync.DestroySemaphore(slot.acquired)
			p.Destroy()
			return nil, fmt.Errorf("creating render semaphore %d: %w", i, err)
		}
		if slot.renderedCPU, err = sync.NewFence(true); err != nil {
			sync.DestroySemaphore(slot.acquired)
			sync.DestroySemaphore(slot.renderedGPU)
			p.Destroy()
			return nil, fmt.Errorf("creating render fence %d: %w", i, err)
		}

		p.slots = append(p.slots, slot)
	}

	return p, nil
}

// CurrentFrame returns the frame in flight index the next Acquire will
// use.
func (p *Presenter) CurrentFrame() int {
	return p.current
}

// Invalidate marks the swapchain as stale. This is how externally
// observed geometry changes, e.g. a window resize notification, enter the
// rebuild path without waiting for the runtime to report them.
func (p *Presenter) Invalidate() {
	p.invalid = true
}

// Acquire blocks until the current frame slot is reusable, obtains the
// next presentable image and returns the submission wiring for it.
//
// When the swapchain turns out to be unusable the Presenter rebuilds it
// and reports errOutOfDate; the caller skips the frame and retries on the
// next cycle. Every other failure is fatal.
func (p *Presenter) Acquire() (Frame, error) {
	slot := &p.slots[p.current]

	// The slot's previous frame must be fully rendered before its
	// primitives are reused.
	if err := p.sync.WaitFence(slot.renderedCPU); err != nil {
		return Frame{}, &PresentError{Op: "wait frame fence", Err: err}
	}

	imageIndex, suboptimal, err := p.target.Acquire(slot.acquired)
	if errors.Is(err, errOutOfDate) {
		p.invalid = true
		p.tryRebuild()
		return Frame{}, errOutOfDate
	}
	if err != nil {
		return Frame{}, &PresentError{Op: "acquire image", Err: err}
	}
	if suboptimal {
		// The current frame still completes normally; the rebuild happens
		// after presenting it.
		p.invalid = true
	}

	// The ring may hand back an image an older frame is still rendering
	// into, since acquisition order is not tied to submission order. Wait
	// that frame out before touching the image.
	if int(imageIndex) < len(p.imagesInFlight) {
		if inFlight := p.imagesInFlight[imageIndex]; inFlight != vk.NullFence {
			if err := p.sync.WaitFence(inFlight); err != nil {
				return Frame{}, &PresentError{Op: "wait image fence", Err: err}
			}
		}
		p.imagesInFlight[imageIndex] = slot.renderedCPU
	}

	// Unsignal the completion fence only now that nothing waits on it; the
	// submitted GPU work signals it again when the frame is done.
	if err := p.sync.ResetFence(slot.renderedCPU); err != nil {
		return Frame{}, &PresentError{Op: "reset frame fence", Err: err}
	}

	return Frame{
		Slot:        p.current,
		ImageIndex:  imageIndex,
		Acquired:    slot.acquired,
		RenderedGPU: slot.renderedGPU,
		RenderedCPU: slot.renderedCPU,
	}, nil
}

// Present queues the frame's image for display, advances the frame cursor
// and, when the swapchain was invalidated, attempts exactly one rebuild.
// A failed rebuild leaves the invalid flag set so a later present retries.
func (p *Presenter) Present(frame Frame) error {
	stale, err := p.target.Present(frame.RenderedGPU, frame.ImageIndex)
	if err != nil {
		return &PresentError{Op: "queue present", Err: err}
	}
	if stale {
		p.invalid = true
	}

	p.current = (p.current + 1) % len(p.slots)

	if p.invalid {
		p.tryRebuild()
	}

	return nil
}

func (p *Presenter) tryRebuild() {
	if err := p.target.Rebuild(); err != nil {
		// The old swapchain is still valid; retry on a later cycle.
		log.Printf("swapchain rebuild failed, will retry: %s", err)
		return
	}

	p.invalid = false
	p.imagesInFlight = make([]vk.Fence, p.target.ImageCount())
}

// Destroy waits for the device to go idle and releases every slot's
// primitives. Nothing may be in flight once this returns.
func (p *Presenter) Destroy() {
	if err := p.sync.WaitIdle(); err != nil {
		log.Printf("device wait idle before presenter destroy: %s", err)
	}

	for _, slot := range p.slots {
		p.sync.DestroySemaphore(slot.acquired)
		p.sync.DestroySemaphore(slot.renderedGPU)
		p.sync.DestroyFence(slot.renderedCPU)
	}

	p.slots = nil
	p.imagesInFlight = nil
}
