package render

import (
	"cmp"
	"fmt"
	"math"

	vk "github.com/vulkan-go/vulkan"
)

// Surface owns the OS bound presentable target handle. It is bound 1:1 to a
// window, created right after the Instance and destroyed right before it,
// independent of the Device.
type Surface struct {
	instance vk.Instance
	handle   vk.Surface
}

// NewSurface wraps a surface pointer obtained from the windowing
// collaborator, e.g. glfw's CreateWindowSurface.
func NewSurface(instance *Instance, surfacePtr uintptr) *Surface {
	return &Surface{
		instance: instance.Handle(),
		handle:   vk.SurfaceFromPointer(surfacePtr),
	}
}

// Handle returns the raw vk.Surface.
func (s *Surface) Handle() vk.Surface {
	return s.handle
}

// Destroy releases the surface. The Device does not have to be alive but
// the Instance does.
func (s *Surface) Destroy() {
	if s.handle != vk.NullSurface {
		vk.DestroySurface(s.instance, s.handle, nil)
		s.handle = vk.NullSurface
	}
}

// Capabilities is a snapshot of what the surface supports on a particular
// adapter. The values can change between calls, e.g. after a resize, so a
// fresh snapshot must be taken before every swapchain build. Never cache
// one across a rebuild.
type Capabilities struct {
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode

	MinImageCount uint32
	// MaxImageCount of zero means there is no upper bound.
	MaxImageCount uint32

	CurrentExtent vk.Extent2D
	MinExtent     vk.Extent2D
	MaxExtent     vk.Extent2D

	CurrentTransform vk.SurfaceTransformFlagBits
}

// Capabilities queries a fresh support snapshot for the given adapter.
func (s *Surface) Capabilities(pDevice vk.PhysicalDevice) (*Capabilities, error) {
	var surfaceCaps vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(pDevice, s.handle, &surfaceCaps)
	if err := resultErr(res); err != nil {
		return nil, fmt.Errorf("failed to query surface capabilities: %w", err)
	}
	surfaceCaps.Deref()
	surfaceCaps.CurrentExtent.Deref()
	surfaceCaps.MinImageExtent.Deref()
	surfaceCaps.MaxImageExtent.Deref()

	caps := &Capabilities{
		MinImageCount:    surfaceCaps.MinImageCount,
		MaxImageCount:    surfaceCaps.MaxImageCount,
		CurrentExtent:    surfaceCaps.CurrentExtent,
		MinExtent:        surfaceCaps.MinImageExtent,
		MaxExtent:        surfaceCaps.MaxImageExtent,
		CurrentTransform: surfaceCaps.CurrentTransform,
	}

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(pDevice, s.handle, &formatCount, nil)
	if err := resultErr(res); err != nil {
		return nil, fmt.Errorf("failed to query surface format count: %w", err)
	}
	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(pDevice, s.handle, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			caps.Formats = append(caps.Formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(pDevice, s.handle, &presentModeCount, nil)
	if err := resultErr(res); err != nil {
		return nil, fmt.Errorf("failed to query present mode count: %w", err)
	}
	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(
			pDevice, s.handle, &presentModeCount, presentModes,
		)
		caps.PresentModes = presentModes
	}

	return caps, nil
}

// IdealFormat prefers 8 bit per channel BGRA in the sRGB color space and
// falls back to the first supported format. The Vulkan contract guarantees
// at least one.
func (c *Capabilities) IdealFormat() vk.SurfaceFormat {
	for _, format := range c.Formats {
		if format.Format == vk.FormatB8g8r8a8Srgb &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}

	return c.Formats[0]
}

// IdealPresentMode prefers the low latency mailbox mode and falls back to
// FIFO, which every implementation must support.
func (c *Capabilities) IdealPresentMode() vk.PresentMode {
	for _, mode := range c.PresentModes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}

	return vk.PresentModeFifo
}

// IdealImageCount targets triple buffering, falls back to double buffering
// and finally to whatever minimum the surface demands.
func (c *Capabilities) IdealImageCount() uint32 {
	count := c.MinImageCount

	if c.MinImageCount <= 3 {
		switch {
		case c.MaxImageCount == 0 || c.MaxImageCount >= 3:
			count = 3
		case c.MaxImageCount >= 2:
			count = 2
		}
	}

	return count
}

// ResolveExtent returns the extent a swapchain must use for the given
// window framebuffer size. A current extent width of MaxUint32 is the
// window manager saying the swapchain decides; everything else means the
// extent must match the surface, so the reported one is returned as is.
func (c *Capabilities) ResolveExtent(width, height uint32) vk.Extent2D {
	if c.CurrentExtent.Width != math.MaxUint32 {
		return c.CurrentExtent
	}

	return vk.Extent2D{
		Width:  clamp(width, c.MinExtent.Width, c.MaxExtent.Width),
		Height: clamp(height, c.MinExtent.Height, c.MaxExtent.Height),
	}
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		val = min
	}
	if val > max {
		val = max
	}
	return val
}
