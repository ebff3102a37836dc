package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/alcor-engine/alcor/queues"
)

func graphicsPresentFamily(index uint32) queues.Family {
	return queues.Family{
		Index:      index,
		Flags:      vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit),
		CanPresent: true,
	}
}

// usableAdapter returns a snapshot that passes DefaultRequirements.
func usableAdapter(name string, kind vk.PhysicalDeviceType) *AdapterInfo {
	return &AdapterInfo{
		Name: name,
		Type: kind,
		Extensions: map[string]struct{}{
			"VK_KHR_swapchain": {},
		},
		QueueFamilies:    []queues.Family{graphicsPresentFamily(0)},
		FormatCount:      4,
		PresentModeCount: 2,
	}
}

func TestSelectPrefersDiscreteOverIntegrated(t *testing.T) {
	integrated := usableAdapter("Intel Iris", vk.PhysicalDeviceTypeIntegratedGpu)
	discrete := usableAdapter("GeForce RTX", vk.PhysicalDeviceTypeDiscreteGpu)

	best, queue, err := Select([]*AdapterInfo{integrated, discrete}, DefaultRequirements())
	require.NoError(t, err)
	assert.Same(t, discrete, best)
	assert.Equal(t, uint32(0), queue)
}

func TestSelectTieBreaksByEnumerationOrder(t *testing.T) {
	first := usableAdapter("GPU A", vk.PhysicalDeviceTypeDiscreteGpu)
	second := usableAdapter("GPU B", vk.PhysicalDeviceTypeDiscreteGpu)

	best, _, err := Select([]*AdapterInfo{first, second}, DefaultRequirements())
	require.NoError(t, err)
	assert.Same(t, second, best, "on equal scores the later adapter wins")
}

func TestSelectFiltersBeforeScoring(t *testing.T) {
	// The discrete adapter would win on score alone, but it misses the
	// swapchain extension and must be gone before scoring starts.
	discrete := usableAdapter("GeForce RTX", vk.PhysicalDeviceTypeDiscreteGpu)
	discrete.Extensions = map[string]struct{}{}
	integrated := usableAdapter("Intel Iris", vk.PhysicalDeviceTypeIntegratedGpu)

	best, _, err := Select([]*AdapterInfo{discrete, integrated}, DefaultRequirements())
	require.NoError(t, err)
	assert.Same(t, integrated, best,
		"an ineligible adapter never competes, no matter its score")
}

func TestRequireFeatureFiltersUnsupportedAdapters(t *testing.T) {
	plain := usableAdapter("GPU A", vk.PhysicalDeviceTypeDiscreteGpu)
	capable := usableAdapter("GPU B", vk.PhysicalDeviceTypeDiscreteGpu)
	capable.GeometryShader = true
	capable.SamplerAnisotropy = true

	reqs := DefaultRequirements().
		RequireFeature(FeatureGeometryShader).
		RequireFeature(FeatureSamplerAnisotropy)

	_, ok := reqs.satisfiedBy(plain)
	assert.False(t, ok, "a missing feature toggle disqualifies the adapter")

	best, _, err := Select([]*AdapterInfo{plain, capable}, reqs)
	require.NoError(t, err)
	assert.Same(t, capable, best)
}

func TestRequirementsFeaturesEnableOnlyRequiredToggles(t *testing.T) {
	features := NewRequirements().
		RequireFeature(FeatureGeometryShader).
		RequireFeature(FeatureShaderFloat64).
		Features()

	assert.Equal(t, vk.Bool32(vk.True), features.GeometryShader)
	assert.Equal(t, vk.Bool32(vk.True), features.ShaderFloat64)
	assert.Equal(t, vk.Bool32(vk.False), features.SamplerAnisotropy)
}

func TestRequireExtensionDeduplicates(t *testing.T) {
	// The configured extension defaults overlap with DefaultRequirements;
	// the device must not see the swapchain extension twice.
	reqs := DefaultRequirements().
		RequireExtension(vk.KhrSwapchainExtensionName + "\x00")

	var swapchains int
	for _, ext := range reqs.Extensions() {
		if ext == vk.KhrSwapchainExtensionName+"\x00" {
			swapchains++
		}
	}
	assert.Equal(t, 1, swapchains)
}

func TestSelectNoSuitableDevice(t *testing.T) {
	noSwapchain := usableAdapter("GPU", vk.PhysicalDeviceTypeDiscreteGpu)
	noSwapchain.Extensions = map[string]struct{}{}

	_, _, err := Select([]*AdapterInfo{noSwapchain}, DefaultRequirements())
	assert.ErrorIs(t, err, ErrNoSuitableDevice)

	_, _, err = Select(nil, DefaultRequirements())
	assert.ErrorIs(t, err, ErrNoSuitableDevice)
}

func TestDefaultRequirementsRejectSoftwareRasterizer(t *testing.T) {
	llvmpipe := usableAdapter("llvmpipe (LLVM 17.0.6, 256 bits)", vk.PhysicalDeviceTypeCpu)
	real := usableAdapter("Radeon RX", vk.PhysicalDeviceTypeDiscreteGpu)

	best, _, err := Select([]*AdapterInfo{llvmpipe, real}, DefaultRequirements())
	require.NoError(t, err)
	assert.Same(t, real, best)

	_, _, err = Select([]*AdapterInfo{llvmpipe}, DefaultRequirements())
	assert.ErrorIs(t, err, ErrNoSuitableDevice,
		"llvmpipe alone leaves no candidate")
}

func TestDefaultRequirementsRejectEmptySurfaceSupport(t *testing.T) {
	adapter := usableAdapter("GPU", vk.PhysicalDeviceTypeDiscreteGpu)
	adapter.FormatCount = 0

	_, _, err := Select([]*AdapterInfo{adapter}, DefaultRequirements())
	assert.ErrorIs(t, err, ErrNoSuitableDevice)
}

func TestRequirementsPredicatesMustAllHold(t *testing.T) {
	adapter := usableAdapter("GPU", vk.PhysicalDeviceTypeDiscreteGpu)

	reqs := DefaultRequirements().
		RequireFunc(func(a *AdapterInfo) bool { return true }).
		RequireFunc(func(a *AdapterInfo) bool { return false })

	_, ok := reqs.satisfiedBy(adapter)
	assert.False(t, ok, "a single failing predicate disqualifies the adapter")
}

func TestRequirementsQueueFlagsAndPresentOnSameFamily(t *testing.T) {
	// Graphics on family 0, presentation only on family 1. No single family
	// carries both, so the adapter does not qualify.
	split := usableAdapter("GPU", vk.PhysicalDeviceTypeDiscreteGpu)
	split.QueueFamilies = []queues.Family{
		{Index: 0, Flags: vk.QueueFlags(vk.QueueGraphicsBit), CanPresent: false},
		{Index: 1, Flags: vk.QueueFlags(vk.QueueTransferBit), CanPresent: true},
	}

	reqs := NewRequirements().
		RequireQueueFlags(vk.QueueFlags(vk.QueueGraphicsBit)).
		RequirePresent()

	_, ok := reqs.satisfiedBy(split)
	assert.False(t, ok)

	// A combined family on index 2 qualifies and is the one reported.
	split.QueueFamilies = append(split.QueueFamilies, graphicsPresentFamily(2))
	queue, ok := reqs.satisfiedBy(split)
	require.True(t, ok)
	assert.Equal(t, uint32(2), queue)
}

func TestRequirementsExtensionsAreNulTerminated(t *testing.T) {
	reqs := NewRequirements().
		RequireExtension("VK_KHR_swapchain").
		RequireExtension("VK_EXT_mesh_shader\x00")

	assert.Equal(t,
		[]string{"VK_KHR_swapchain\x00", "VK_EXT_mesh_shader\x00"},
		reqs.Extensions())
}

func TestScoreWeights(t *testing.T) {
	base := &AdapterInfo{Type: vk.PhysicalDeviceTypeOther}
	assert.Equal(t, uint64(0), Score(base))

	discrete := &AdapterInfo{Type: vk.PhysicalDeviceTypeDiscreteGpu}
	assert.Equal(t, uint64(100), Score(discrete))

	integrated := &AdapterInfo{Type: vk.PhysicalDeviceTypeIntegratedGpu}
	assert.Equal(t, uint64(50), Score(integrated))

	loaded := &AdapterInfo{
		Type: vk.PhysicalDeviceTypeDiscreteGpu,
		Extensions: map[string]struct{}{
			meshShaderExtension: {},
		},
		QueueFamilies: []queues.Family{
			{Index: 0, Flags: vk.QueueFlags(vk.QueueComputeBit)},
		},
		GeometryShader: true,
		ShaderFloat64:  true,
		LocalMemoryMiB: 8 * 1024,
	}
	assert.Equal(t, uint64(100+10+10+10+5+8), Score(loaded))
}

func TestScoreCapsMemoryContribution(t *testing.T) {
	huge := &AdapterInfo{LocalMemoryMiB: 512 * 1024}
	assert.Equal(t, uint64(maxMemoryScoreGiB), Score(huge),
		"memory beyond the cap must not outweigh the device type")
}

func TestScoreOrdersIntegratedAboveHeadlessDiscrete(t *testing.T) {
	// An integrated GPU with a fat score profile still loses to a plain
	// discrete one; the type weight dominates the smaller weights.
	integrated := usableAdapter("iGPU", vk.PhysicalDeviceTypeIntegratedGpu)
	integrated.GeometryShader = true
	integrated.ShaderFloat64 = true
	integrated.LocalMemoryMiB = 16 * 1024

	discrete := usableAdapter("dGPU", vk.PhysicalDeviceTypeDiscreteGpu)
	discrete.QueueFamilies = []queues.Family{
		{Index: 0, Flags: vk.QueueFlags(vk.QueueGraphicsBit), CanPresent: true},
	}

	best, _, err := Select([]*AdapterInfo{integrated, discrete}, DefaultRequirements())
	require.NoError(t, err)
	assert.Same(t, discrete, best)
}
