// Package mesh loads Wavefront OBJ geometry into the vertex layout the
// drawable injection point consumes. It is a collaborator of the render
// core, not part of it; the core only ever sees the recorded draw
// commands.
package mesh

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/mokiat/go-data-front/decoder/obj"
	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"

	"github.com/alcor-engine/alcor/unsafer"
)

// Vertex is one interleaved vertex as the demo pipelines expect it.
type Vertex struct {
	Pos      lin.Vec3
	Color    lin.Vec3
	TexCoord lin.Vec2
}

// BindingDescription describes the interleaved vertex buffer layout.
func (Vertex) BindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(Vertex{})),
		InputRate: vk.VertexInputRateVertex,
	}
}

// AttributeDescriptions describes the per attribute locations and offsets.
func (Vertex) AttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.TexCoord)),
		},
	}
}

// Mesh is indexed geometry ready for upload into GPU buffers.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Decode reads a Wavefront OBJ model and flattens it into an indexed
// triangle mesh. Vertices referenced with identical position and texture
// coordinates are de-duplicated.
func Decode(r io.Reader) (*Mesh, error) {
	decoder := obj.NewDecoder(obj.DefaultLimits())
	model, err := decoder.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding OBJ model: %w", err)
	}

	mesh := &Mesh{}
	seen := make(map[Vertex]uint32)

	for _, object := range model.Objects {
		for _, objMesh := range object.Meshes {
			for _, face := range objMesh.Faces {
				for _, ref := range face.References {
					vertex := Vertex{
						Color: lin.Vec3{1, 1, 1},
					}

					position := model.Vertices[ref.VertexIndex]
					vertex.Pos = lin.Vec3{
						float32(position.X),
						float32(position.Y),
						float32(position.Z),
					}

					if ref.HasTexCoord() {
						texCoord := model.TexCoords[ref.TexCoordIndex]
						// OBJ uses a bottom-left texture origin, Vulkan a
						// top-left one.
						vertex.TexCoord = lin.Vec2{
							float32(texCoord.U),
							1 - float32(texCoord.V),
						}
					}

					index, ok := seen[vertex]
					if !ok {
						index = uint32(len(mesh.Vertices))
						seen[vertex] = index
						mesh.Vertices = append(mesh.Vertices, vertex)
					}
					mesh.Indices = append(mesh.Indices, index)
				}
			}
		}
	}

	return mesh, nil
}

// VertexBytes returns the vertex slice viewed as raw bytes for buffer
// upload. No copy is made.
func (m *Mesh) VertexBytes() []byte {
	return unsafer.SliceToBytes(m.Vertices)
}

// IndexBytes returns the index slice viewed as raw bytes for buffer
// upload. No copy is made.
func (m *Mesh) IndexBytes() []byte {
	return unsafer.SliceToBytes(m.Indices)
}
