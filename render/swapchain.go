package render

import (
	"errors"
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// errOutOfDate marks the single recoverable presentation failure: the
// swapchain no longer matches the surface and must be rebuilt. It never
// escapes the render package.
var errOutOfDate = errors.New("swapchain out of date")

// SizeFunc reports the current framebuffer size of the target window. It
// is consulted on every build so a rebuild picks up the latest geometry.
type SizeFunc func() (width, height uint32)

// Swapchain owns the ring of presentable images negotiated with the
// windowing system. The images themselves are owned by the Vulkan runtime;
// the image views onto them are the only resources the Swapchain tracks
// for teardown.
type Swapchain struct {
	device  *Device
	surface *Surface
	size    SizeFunc

	handle vk.Swapchain
	images []vk.Image
	views  []vk.ImageView
	format vk.Format
	extent vk.Extent2D
}

// BuildSwapchain negotiates a swapchain against a fresh capability
// snapshot. The previous swapchain, when given, is passed along so the
// platform can reuse its internal state during the handoff.
func BuildSwapchain(device *Device, surface *Surface, size SizeFunc, old *Swapchain) (*Swapchain, error) {
	caps, err := surface.Capabilities(device.Physical())
	if err != nil {
		return nil, fmt.Errorf("querying surface capabilities: %w", err)
	}

	surfaceFormat := caps.IdealFormat()
	width, height := size()
	extent := caps.ResolveExtent(width, height)

	oldHandle := vk.NullSwapchain
	if old != nil {
		oldHandle = old.handle
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface.Handle(),
		MinImageCount:    caps.IdealImageCount(),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(
			vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit,
		),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      caps.IdealPresentMode(),
		Clipped:          vk.True,
		OldSwapchain:     oldHandle,
	}

	var swapchain vk.Swapchain
	res := vk.CreateSwapchain(device.Handle(), &createInfo, nil, &swapchain)
	if err := resultErr(res); err != nil {
		return nil, fmt.Errorf("failed to create swapchain: %w", err)
	}

	var imageCount uint32
	vk.GetSwapchainImages(device.Handle(), swapchain, &imageCount, nil)
	images := make([]vk.Image, imageCount)
	vk.GetSwapchainImages(device.Handle(), swapchain, &imageCount, images)

	sc := &Swapchain{
		device:  device,
		surface: surface,
		size:    size,
		handle:  swapchain,
		images:  images,
		format:  surfaceFormat.Format,
		extent:  extent,
	}

	if err := sc.createImageViews(); err != nil {
		sc.teardown()
		return nil, err
	}

	return sc, nil
}

func (s *Swapchain) createImageViews() error {
	for i, image := range s.images {
		createInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		var view vk.ImageView
		res := vk.CreateImageView(s.device.Handle(), &createInfo, nil, &view)
		if err := resultErr(res); err != nil {
			return fmt.Errorf("failed to create image view %d: %w", i, err)
		}

		s.views = append(s.views, view)
	}

	return nil
}

// ImageCount returns the number of presentable images in the ring.
func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

// Image returns the presentable image at the given index.
func (s *Swapchain) Image(index uint32) vk.Image {
	return s.images[index]
}

// View returns the image view at the given index.
func (s *Swapchain) View(index uint32) vk.ImageView {
	return s.views[index]
}

// Format returns the pixel format the ring was negotiated with.
func (s *Swapchain) Format() vk.Format {
	return s.format
}

// Extent returns the image extent the ring was negotiated with.
func (s *Swapchain) Extent() vk.Extent2D {
	return s.extent
}

// Acquire requests the next presentable image index, arranging for the
// given semaphore to signal once the image is actually ready. A true
// suboptimal return means the frame may proceed but the swapchain should
// be rebuilt after presenting. errOutOfDate means no image was acquired.
func (s *Swapchain) Acquire(signal vk.Semaphore) (uint32, bool, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(
		s.device.Handle(),
		s.handle,
		vk.MaxUint64,
		signal,
		vk.NullFence,
		&imageIndex,
	)

	switch res {
	case vk.Success:
		return imageIndex, false, nil
	case vk.Suboptimal:
		return imageIndex, true, nil
	case vk.ErrorOutOfDate:
		return 0, false, errOutOfDate
	default:
		return 0, false, resultErr(res)
	}
}

// Present queues the image at the given index for display once the wait
// semaphore signals. A true return means the swapchain should be rebuilt.
func (s *Swapchain) Present(wait vk.Semaphore, imageIndex uint32) (bool, error) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{imageIndex},
	}

	res := vk.QueuePresent(s.device.Queue(), &presentInfo)

	switch res {
	case vk.Success:
		return false, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return true, nil
	default:
		return false, resultErr(res)
	}
}

// Rebuild replaces the ring with one negotiated against the current
// surface state. The build happens first, with the old swapchain passed
// along as a transition hint; only once the new one exists is the old one
// torn down. On failure the old swapchain stays valid and usable, so a
// failed rebuild can simply be retried on a later present cycle.
func (s *Swapchain) Rebuild() error {
	next, err := BuildSwapchain(s.device, s.surface, s.size, s)
	if err != nil {
		return fmt.Errorf("rebuilding swapchain: %w", err)
	}

	// No frame may still target the old images once they go away.
	if err := s.device.WaitIdle(); err != nil {
		log.Printf("device wait idle during swapchain rebuild: %s", err)
	}

	s.teardown()
	*s = *next

	return nil
}

// teardown releases the owned views first and the swapchain handle after,
// leaving the struct inert.
func (s *Swapchain) teardown() {
	for _, view := range s.views {
		vk.DestroyImageView(s.device.Handle(), view, nil)
	}
	s.views = nil

	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device.Handle(), s.handle, nil)
		s.handle = vk.NullSwapchain
	}
	s.images = nil
}

// Destroy releases the swapchain. The device must not be executing any
// work which targets its images.
func (s *Swapchain) Destroy() {
	s.teardown()
}
