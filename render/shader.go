package render

import (
	"fmt"
	"io/fs"
	"path"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Shader wraps a compiled SPIR-V module together with the pipeline stage
// description the caller declared for it. The core never interprets the
// blob beyond handing it to module creation.
type Shader struct {
	module vk.ShaderModule
	stage  vk.PipelineShaderStageCreateInfo
}

// NewShaderModule creates a shader module from an opaque SPIR-V blob with
// the given stage and entry point name.
func NewShaderModule(
	device *Device,
	code []byte,
	stage vk.ShaderStageFlagBits,
	entry string,
) (*Shader, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V code size must be a non-zero multiple of 4, got %d", len(code))
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    repackUint32(code),
	}

	var module vk.ShaderModule
	res := vk.CreateShaderModule(device.Handle(), &createInfo, nil, &module)
	if err := resultErr(res); err != nil {
		return nil, fmt.Errorf("failed to create shader module: %w", err)
	}

	return &Shader{
		module: module,
		stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: module,
			PName:  nullTerm(entry),
		},
	}, nil
}

// StageInfo returns the stage description for pipeline creation.
func (s *Shader) StageInfo() vk.PipelineShaderStageCreateInfo {
	return s.stage
}

// Destroy releases the module. Pipelines created from it stay valid.
func (s *Shader) Destroy(device *Device) {
	if s.module != vk.ShaderModule(vk.NullHandle) {
		vk.DestroyShaderModule(device.Handle(), s.module, nil)
		s.module = vk.ShaderModule(vk.NullHandle)
	}
}

// ShaderLoader reads compiled shader blobs from a file system by logical
// path, caching each one on first use. Only .spv files are accepted.
type ShaderLoader struct {
	fsys  fs.FS
	files map[string][]byte
}

// NewShaderLoader returns a loader over the given file system, typically
// an embed.FS holding the compiled shaders.
func NewShaderLoader(fsys fs.FS) *ShaderLoader {
	return &ShaderLoader{
		fsys:  fsys,
		files: make(map[string][]byte),
	}
}

// Load returns the shader blob stored under name.
func (l *ShaderLoader) Load(name string) ([]byte, error) {
	if path.Ext(name) != ".spv" {
		return nil, fmt.Errorf("shader %q: wrong file extension", name)
	}

	if code, ok := l.files[name]; ok {
		return code, nil
	}

	code, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading shader %q: %w", name, err)
	}

	l.files[name] = code
	return code, nil
}

func repackUint32(data []byte) []uint32 {
	buf := make([]uint32, len(data)/4)
	vk.Memcopy(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&buf)).Data), data)
	return buf
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
