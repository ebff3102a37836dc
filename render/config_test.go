package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config

	assert.Equal(t, 2, cfg.framesInFlight())
	assert.Equal(t, []string{"VK_LAYER_KHRONOS_validation\x00"}, cfg.validationLayers())
	assert.Equal(t, []string{vk.KhrSwapchainExtensionName + "\x00"}, cfg.deviceExtensions())

	cfg.FramesInFlight = 3
	assert.Equal(t, 3, cfg.framesInFlight())

	cfg.FramesInFlight = -1
	assert.Equal(t, 2, cfg.framesInFlight(), "negative counts fall back to the default")
}

func TestResultErrClassification(t *testing.T) {
	assert.NoError(t, resultErr(vk.Success))

	assert.ErrorIs(t, resultErr(vk.ErrorOutOfHostMemory), ErrOutOfMemory)
	assert.ErrorIs(t, resultErr(vk.ErrorOutOfDeviceMemory), ErrOutOfMemory)
	assert.ErrorIs(t, resultErr(vk.ErrorSurfaceLost), ErrSurfaceLost)

	err := resultErr(vk.ErrorDeviceLost)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutOfMemory)
}

func TestPresentErrorWrapping(t *testing.T) {
	cause := errors.New("device lost")
	err := &PresentError{Op: "queue present", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "queue present")
	assert.Contains(t, err.Error(), "device lost")
}
