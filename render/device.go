package render

import (
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// Device exclusively owns the logical device handle and the submission
// queue created for the selected adapter. It must be destroyed before the
// Instance and only after all in flight work has drained.
type Device struct {
	physical    vk.PhysicalDevice
	handle      vk.Device
	queue       vk.Queue
	queueFamily uint32
}

// NewDevice creates the logical device for the selected adapter with a
// single queue from the family the selection recorded. The feature
// toggles the selection required are enabled on the device.
func NewDevice(
	cfg *Config,
	adapter *AdapterInfo,
	queueFamily uint32,
	extensions []string,
	features vk.PhysicalDeviceFeatures,
) (*Device, error) {
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{features},

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	if cfg.Debug {
		layers := cfg.validationLayers()
		createInfo.PpEnabledLayerNames = layers
		createInfo.EnabledLayerCount = uint32(len(layers))
	}

	var device vk.Device
	res := vk.CreateDevice(adapter.handle, &createInfo, nil, &device)
	if err := resultErr(res); err != nil {
		return nil, fmt.Errorf("failed to create logical device: %w", err)
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, queueFamily, 0, &queue)

	if cfg.Debug {
		log.Printf("created logical device on %q (queue family %d)",
			adapter.Name, queueFamily)
	}

	return &Device{
		physical:    adapter.handle,
		handle:      device,
		queue:       queue,
		queueFamily: queueFamily,
	}, nil
}

// Handle returns the raw vk.Device.
func (d *Device) Handle() vk.Device {
	return d.handle
}

// Physical returns the adapter the device was created on.
func (d *Device) Physical() vk.PhysicalDevice {
	return d.physical
}

// Queue returns the submission queue.
func (d *Device) Queue() vk.Queue {
	return d.queue
}

// QueueFamily returns the queue family index the queue belongs to.
func (d *Device) QueueFamily() uint32 {
	return d.queueFamily
}

// Submit sends recorded command buffers to the queue, signaling the given
// fence when the GPU is done with them.
func (d *Device) Submit(submit vk.SubmitInfo, fence vk.Fence) error {
	res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, fence)
	if err := resultErr(res); err != nil {
		return fmt.Errorf("queue submit error: %w", err)
	}
	return nil
}

// NewSemaphore creates an unsignaled binary semaphore.
func (d *Device) NewSemaphore() (vk.Semaphore, error) {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	res := vk.CreateSemaphore(d.handle, &semaphoreInfo, nil, &semaphore)
	if err := resultErr(res); err != nil {
		return vk.Semaphore(vk.NullHandle), fmt.Errorf("failed to create semaphore: %w", err)
	}
	return semaphore, nil
}

// NewFence creates a fence, optionally already signaled.
func (d *Device) NewFence(signaled bool) (vk.Fence, error) {
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	res := vk.CreateFence(d.handle, &fenceInfo, nil, &fence)
	if err := resultErr(res); err != nil {
		return vk.NullFence, fmt.Errorf("failed to create fence: %w", err)
	}
	return fence, nil
}

// WaitFence blocks until the fence signals. The wait is effectively
// unbounded.
func (d *Device) WaitFence(fence vk.Fence) error {
	res := vk.WaitForFences(d.handle, 1, []vk.Fence{fence}, vk.True, vk.MaxUint64)
	return resultErr(res)
}

// ResetFence returns the fence to the unsignaled state.
func (d *Device) ResetFence(fence vk.Fence) error {
	return resultErr(vk.ResetFences(d.handle, 1, []vk.Fence{fence}))
}

// DestroySemaphore releases a semaphore created on this device.
func (d *Device) DestroySemaphore(semaphore vk.Semaphore) {
	if semaphore != vk.Semaphore(vk.NullHandle) {
		vk.DestroySemaphore(d.handle, semaphore, nil)
	}
}

// DestroyFence releases a fence created on this device.
func (d *Device) DestroyFence(fence vk.Fence) {
	if fence != vk.NullFence {
		vk.DestroyFence(d.handle, fence, nil)
	}
}

// WaitIdle blocks until every queue on the device has drained.
func (d *Device) WaitIdle() error {
	return resultErr(vk.DeviceWaitIdle(d.handle))
}

// Destroy waits for all in flight work and releases the device. Everything
// created on the device must already be gone.
func (d *Device) Destroy() {
	if d.handle == vk.Device(vk.NullHandle) {
		return
	}
	if err := d.WaitIdle(); err != nil {
		log.Printf("device wait idle before destroy: %s", err)
	}
	vk.DestroyDevice(d.handle, nil)
	d.handle = vk.Device(vk.NullHandle)
}
