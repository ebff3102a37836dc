package render

import (
	vk "github.com/vulkan-go/vulkan"
)

// Engine version reported to the Vulkan runtime.
const (
	EngineName  = "Alcor"
	engineMajor = 0
	engineMinor = 1
	enginePatch = 0
)

// Version is an application version triple.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// Config holds everything the presentation core needs to know about the
// application. It is passed once at construction and never changes.
type Config struct {
	// AppName is reported to the Vulkan runtime and used for the window
	// title by the demo program.
	AppName string

	// Version is the application version reported to the runtime.
	Version Version

	// FramesInFlight is the number of frames the CPU may record ahead of
	// GPU completion. Two is a good number. Zero means two.
	FramesInFlight int

	// Debug enables the Vulkan validation layers and verbose logging.
	Debug bool

	// ValidationLayers is the list of layers enabled when Debug is set.
	// Empty means the Khronos validation layer.
	ValidationLayers []string

	// DeviceExtensions is the list of required device extensions. Empty
	// means just the swapchain extension.
	DeviceExtensions []string

	// DeviceFeatures is the list of feature toggles the application
	// requires. Adapters without them are filtered out during selection
	// and the surviving toggles are enabled at device creation.
	DeviceFeatures []Feature
}

// framesInFlight returns the configured frame count with the default
// applied.
func (c *Config) framesInFlight() int {
	if c.FramesInFlight <= 0 {
		return 2
	}
	return c.FramesInFlight
}

func (c *Config) validationLayers() []string {
	if len(c.ValidationLayers) == 0 {
		return []string{"VK_LAYER_KHRONOS_validation\x00"}
	}
	return c.ValidationLayers
}

func (c *Config) deviceExtensions() []string {
	if len(c.DeviceExtensions) == 0 {
		return []string{vk.KhrSwapchainExtensionName + "\x00"}
	}
	return c.DeviceExtensions
}
