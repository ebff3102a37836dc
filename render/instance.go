package render

import (
	"fmt"
	"log"
	"strings"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Instance owns the Vulkan library binding and the top level vk.Instance
// handle. It is created once at startup and destroyed last, after every
// component which depends on it.
type Instance struct {
	cfg    *Config
	handle vk.Instance
}

// NewInstance loads the Vulkan library through the given proc address
// resolver and creates the instance with the extensions required by the
// windowing collaborator.
func NewInstance(cfg *Config, procAddr unsafe.Pointer, extensions []string) (*Instance, error) {
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to init the Vulkan binding: %w", err)
	}

	if cfg.Debug && !checkValidationSupport(cfg.validationLayers()) {
		return nil, fmt.Errorf("validation layers requested but not available")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   nullTerm(cfg.AppName),
		ApplicationVersion: vk.MakeVersion(int(cfg.Version.Major), int(cfg.Version.Minor), int(cfg.Version.Patch)),
		PEngineName:        EngineName + "\x00",
		EngineVersion:      vk.MakeVersion(engineMajor, engineMinor, enginePatch),
		ApiVersion:         vk.ApiVersion11,
	}

	for i, ext := range extensions {
		extensions[i] = nullTerm(ext)
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	if cfg.Debug {
		layers := cfg.validationLayers()
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return nil, fmt.Errorf("failed to create Vulkan instance: %w", err)
	}

	return &Instance{cfg: cfg, handle: instance}, nil
}

// Handle returns the raw vk.Instance.
func (n *Instance) Handle() vk.Instance {
	return n.handle
}

// Destroy releases the instance. All dependent handles must already be
// destroyed.
func (n *Instance) Destroy() {
	if n.handle != vk.Instance(vk.NullHandle) {
		vk.DestroyInstance(n.handle, nil)
		n.handle = vk.Instance(vk.NullHandle)
	}
}

func checkValidationSupport(wanted []string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, count)

	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return false
	}

	available := make(map[string]struct{}, count)
	for _, layer := range availableLayers {
		layer.Deref()
		available[vk.ToString(layer.LayerName[:])] = struct{}{}
	}

	for _, layer := range wanted {
		if _, ok := available[strings.TrimRight(layer, "\x00")]; !ok {
			log.Printf("validation layer %q is not available", layer)
			return false
		}
	}

	return true
}

// nullTerm makes sure a string carries the NUL terminator the C side
// expects.
func nullTerm(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}
