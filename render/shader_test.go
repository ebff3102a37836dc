package render

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestShaderModuleRejectsMisalignedCode(t *testing.T) {
	_, err := NewShaderModule(nil, nil, vk.ShaderStageVertexBit, "main")
	assert.Error(t, err, "empty blobs are rejected before touching the device")

	_, err = NewShaderModule(nil, []byte{0x03, 0x02, 0x23}, vk.ShaderStageVertexBit, "main")
	assert.Error(t, err, "SPIR-V is a stream of 32 bit words")
}

func TestShaderLoaderRejectsWrongExtension(t *testing.T) {
	loader := NewShaderLoader(fstest.MapFS{})

	_, err := loader.Load("vert.glsl")
	assert.Error(t, err)

	_, err = loader.Load("vert")
	assert.Error(t, err)
}

func TestShaderLoaderReadsAndCaches(t *testing.T) {
	blob := []byte{0x03, 0x02, 0x23, 0x07}
	fsys := fstest.MapFS{
		"vert.spv": &fstest.MapFile{Data: blob},
	}
	loader := NewShaderLoader(fsys)

	code, err := loader.Load("vert.spv")
	require.NoError(t, err)
	assert.Equal(t, blob, code)

	// A second load comes from the cache, not the file system.
	delete(fsys, "vert.spv")
	code, err = loader.Load("vert.spv")
	require.NoError(t, err)
	assert.Equal(t, blob, code)

	_, err = loader.Load("frag.spv")
	assert.Error(t, err, "missing files surface the underlying read error")
}

func TestRepackUint32(t *testing.T) {
	words := repackUint32([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.Len(t, words, 2)
	assert.Equal(t, uint32(0x07230203), words[0], "SPIR-V magic, little endian")
	assert.Equal(t, uint32(0x00010000), words[1])
}
