package render

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Errors returned by the presentation core. Everything except the swapchain
// becoming out of date is fatal and terminates the render loop.
var (
	// ErrNoSuitableDevice is returned when no physical device passes the
	// configured requirements. It is a startup failure, there is no retry.
	ErrNoSuitableDevice = errors.New("no suitable physical device found")

	// ErrSurfaceLost is returned when the presentation surface has become
	// permanently unusable.
	ErrSurfaceLost = errors.New("presentation surface lost")

	// ErrOutOfMemory is returned when the Vulkan runtime reports host or
	// device memory exhaustion.
	ErrOutOfMemory = errors.New("graphics runtime out of memory")
)

// PresentError wraps a fatal failure from the acquire/submit/present
// protocol. Out-of-date surfaces never produce a PresentError, they are
// handled by the invalidate and rebuild path.
type PresentError struct {
	Op  string
	Err error
}

func (e *PresentError) Error() string {
	return fmt.Sprintf("presentation failure during %s: %s", e.Op, e.Err)
}

func (e *PresentError) Unwrap() error {
	return e.Err
}

// resultErr converts a vk.Result into one of the typed errors above, or
// falls back to the binding's own error text.
func resultErr(res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("%w: %s", ErrOutOfMemory, vk.Error(res))
	case vk.ErrorSurfaceLost:
		return fmt.Errorf("%w: %s", ErrSurfaceLost, vk.Error(res))
	default:
		return vk.Error(res)
	}
}
