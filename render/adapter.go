package render

import (
	"fmt"
	"log"
	"sort"
	"strings"

	vk "github.com/vulkan-go/vulkan"

	"github.com/alcor-engine/alcor/queues"
)

// meshShaderExtension marks newer hardware and adds a scoring bonus. The
// binding predates the extension so the name is spelled out.
const meshShaderExtension = "VK_EXT_mesh_shader"

// maxMemoryScoreGiB caps the memory contribution to the adapter score so a
// single giant adapter does not dominate every other signal.
const maxMemoryScoreGiB = 64

// Feature identifies a device feature toggle. A required feature filters
// adapters during selection and is enabled at device creation.
type Feature int

const (
	FeatureGeometryShader Feature = iota
	FeatureShaderFloat64
	FeatureSamplerAnisotropy
)

// AdapterInfo is a snapshot of a physical device. It is queried during
// selection and discarded afterwards; only the winning handle and queue
// family index persist.
type AdapterInfo struct {
	Name              string
	Type              vk.PhysicalDeviceType
	APIVersion        uint32
	Extensions        map[string]struct{}
	QueueFamilies     []queues.Family
	GeometryShader    bool
	ShaderFloat64     bool
	SamplerAnisotropy bool

	// LocalMemoryMiB is the total device local heap size in MiB.
	LocalMemoryMiB uint64

	// FormatCount and PresentModeCount are the number of surface formats
	// and present modes the adapter supports for the target surface.
	FormatCount      int
	PresentModeCount int

	handle vk.PhysicalDevice
}

// HasExtension returns whether the adapter exposes the named device
// extension.
func (a *AdapterInfo) HasExtension(name string) bool {
	_, ok := a.Extensions[name]
	return ok
}

// HasFeature returns whether the adapter supports the given feature
// toggle.
func (a *AdapterInfo) HasFeature(f Feature) bool {
	switch f {
	case FeatureGeometryShader:
		return a.GeometryShader
	case FeatureShaderFloat64:
		return a.ShaderFloat64
	case FeatureSamplerAnisotropy:
		return a.SamplerAnisotropy
	}
	return false
}

// Requirements accumulates the conditions an adapter must satisfy to be
// eligible for selection. All registered conditions must hold, including
// every custom predicate.
type Requirements struct {
	extensions []string
	features   []Feature
	queueFlags vk.QueueFlags
	present    bool
	predicates []func(*AdapterInfo) bool
}

// NewRequirements returns an empty Requirements set.
func NewRequirements() *Requirements {
	return &Requirements{}
}

// RequireExtension adds a device extension name to the requirements.
// A NUL terminator on the name is stripped; registering the same
// extension twice is a no-op.
func (r *Requirements) RequireExtension(name string) *Requirements {
	name = strings.TrimRight(name, "\x00")
	for _, ext := range r.extensions {
		if ext == name {
			return r
		}
	}
	r.extensions = append(r.extensions, name)
	return r
}

// RequireFeature adds a device feature toggle. Adapters without the
// feature are filtered out and device creation enables it.
func (r *Requirements) RequireFeature(f Feature) *Requirements {
	r.features = append(r.features, f)
	return r
}

// RequireQueueFlags adds capability flags which a single queue family must
// carry in full.
func (r *Requirements) RequireQueueFlags(flags vk.QueueFlags) *Requirements {
	r.queueFlags |= flags
	return r
}

// RequirePresent demands that the queue family satisfying the capability
// flags can also present to the target surface.
func (r *Requirements) RequirePresent() *Requirements {
	r.present = true
	return r
}

// RequireFunc adds an arbitrary predicate over the adapter snapshot. Every
// registered predicate must pass for the adapter to stay eligible.
func (r *Requirements) RequireFunc(pred func(*AdapterInfo) bool) *Requirements {
	r.predicates = append(r.predicates, pred)
	return r
}

// Extensions returns the required extension names NUL terminated, ready for
// a DeviceCreateInfo.
func (r *Requirements) Extensions() []string {
	names := make([]string, 0, len(r.extensions))
	for _, ext := range r.extensions {
		names = append(names, ext+"\x00")
	}
	return names
}

// Features returns the required feature toggles as the feature struct
// device creation enables.
func (r *Requirements) Features() vk.PhysicalDeviceFeatures {
	var features vk.PhysicalDeviceFeatures
	for _, f := range r.features {
		switch f {
		case FeatureGeometryShader:
			features.GeometryShader = vk.True
		case FeatureShaderFloat64:
			features.ShaderFloat64 = vk.True
		case FeatureSamplerAnisotropy:
			features.SamplerAnisotropy = vk.True
		}
	}
	return features
}

// satisfiedBy reports whether the adapter meets every requirement and, when
// it does, which queue family satisfies the queue demands.
func (r *Requirements) satisfiedBy(a *AdapterInfo) (uint32, bool) {
	for _, ext := range r.extensions {
		if !a.HasExtension(ext) {
			return 0, false
		}
	}

	for _, f := range r.features {
		if !a.HasFeature(f) {
			return 0, false
		}
	}

	for _, pred := range r.predicates {
		if !pred(a) {
			return 0, false
		}
	}

	return queues.FindCombined(a.QueueFamilies, r.queueFlags, r.present)
}

// DefaultRequirements returns the requirement set used by the Renderer: the
// swapchain extension, a graphics queue which can present, at least one
// surface format and present mode, and no llvmpipe software rasterizer.
func DefaultRequirements() *Requirements {
	return NewRequirements().
		RequireExtension(vk.KhrSwapchainExtensionName).
		RequireQueueFlags(vk.QueueFlags(vk.QueueGraphicsBit)).
		RequirePresent().
		RequireFunc(func(a *AdapterInfo) bool {
			return !strings.HasPrefix(a.Name, "llvmpipe")
		}).
		RequireFunc(func(a *AdapterInfo) bool {
			return a.FormatCount > 0 && a.PresentModeCount > 0
		})
}

// Score rates an adapter. Bigger is better. The weights go down with the
// importance of the property.
func Score(a *AdapterInfo) uint64 {
	var score uint64

	switch a.Type {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		score += 100
	case vk.PhysicalDeviceTypeIntegratedGpu:
		score += 50
	}

	if a.HasExtension(meshShaderExtension) {
		score += 10
	}

	for _, family := range a.QueueFamilies {
		if family.Flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			score += 10
			break
		}
	}

	if a.GeometryShader {
		score += 10
	}

	if a.ShaderFloat64 {
		score += 5
	}

	gib := a.LocalMemoryMiB / 1024
	if gib > maxMemoryScoreGiB {
		gib = maxMemoryScoreGiB
	}
	score += gib

	return score
}

// Select filters the adapters through the requirements, scores the
// survivors and returns the best one together with its queue family index.
// Ties are broken by enumeration order with the later adapter winning.
func Select(adapters []*AdapterInfo, reqs *Requirements) (*AdapterInfo, uint32, error) {
	type candidate struct {
		adapter *AdapterInfo
		queue   uint32
		score   uint64
	}

	var candidates []candidate
	for _, adapter := range adapters {
		queue, ok := reqs.satisfiedBy(adapter)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			adapter: adapter,
			queue:   queue,
			score:   Score(adapter),
		})
	}

	if len(candidates) == 0 {
		return nil, 0, ErrNoSuitableDevice
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score < candidates[j].score
	})

	best := candidates[len(candidates)-1]
	return best.adapter, best.queue, nil
}

// enumerateAdapters queries a snapshot of every physical device visible to
// the instance, including its presentation support for the given surface.
func enumerateAdapters(instance vk.Instance, surface *Surface) ([]*AdapterInfo, error) {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to get the number of physical devices: %w", err)
	}
	if deviceCount == 0 {
		return nil, fmt.Errorf("%w: no GPUs with Vulkan support", ErrNoSuitableDevice)
	}

	pDevices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, pDevices))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate the physical devices: %w", err)
	}

	adapters := make([]*AdapterInfo, 0, deviceCount)
	for _, pDevice := range pDevices {
		adapters = append(adapters, queryAdapter(pDevice, surface))
	}

	return adapters, nil
}

func queryAdapter(pDevice vk.PhysicalDevice, surface *Surface) *AdapterInfo {
	adapter := &AdapterInfo{
		Extensions: make(map[string]struct{}),
		handle:     pDevice,
	}

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pDevice, &properties)
	properties.Deref()

	adapter.Name = vk.ToString(properties.DeviceName[:])
	adapter.Type = properties.DeviceType
	adapter.APIVersion = properties.ApiVersion

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pDevice, &features)
	features.Deref()

	adapter.GeometryShader = features.GeometryShader == vk.True
	adapter.ShaderFloat64 = features.ShaderFloat64 == vk.True
	adapter.SamplerAnisotropy = features.SamplerAnisotropy == vk.True

	var extensionCount uint32
	res := vk.EnumerateDeviceExtensionProperties(pDevice, "", &extensionCount, nil)
	if err := vk.Error(res); err != nil {
		log.Printf("WARNING: enumerating device extension count: %s", err)
	}
	extensions := make([]vk.ExtensionProperties, extensionCount)
	res = vk.EnumerateDeviceExtensionProperties(pDevice, "", &extensionCount, extensions)
	if err := vk.Error(res); err != nil {
		log.Printf("WARNING: getting device extension properties: %s", err)
	}
	for _, extension := range extensions {
		extension.Deref()
		adapter.Extensions[vk.ToString(extension.ExtensionName[:])] = struct{}{}
	}

	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pDevice, &memProperties)
	memProperties.Deref()

	for i := uint32(0); i < memProperties.MemoryHeapCount; i++ {
		heap := memProperties.MemoryHeaps[i]
		heap.Deref()
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			adapter.LocalMemoryMiB += uint64(heap.Size) / (1024 * 1024)
		}
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pDevice, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pDevice, &familyCount, families)

	for i, family := range families {
		family.Deref()

		var canPresent vk.Bool32
		err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(
			pDevice, uint32(i), surface.Handle(), &canPresent,
		))
		if err != nil {
			log.Printf("error querying surface support for queue family %d: %s", i, err)
		}

		adapter.QueueFamilies = append(adapter.QueueFamilies, queues.Family{
			Index:      uint32(i),
			Flags:      family.QueueFlags,
			CanPresent: canPresent.B(),
		})
	}

	caps, err := surface.Capabilities(pDevice)
	if err != nil {
		log.Printf("error querying surface capabilities for %q: %s", adapter.Name, err)
	} else {
		adapter.FormatCount = len(caps.Formats)
		adapter.PresentModeCount = len(caps.PresentModes)
	}

	return adapter
}
