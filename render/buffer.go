package render

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// GeometryBuffers holds the immutable vertex and index buffers of the quad.
type GeometryBuffers struct {
	driver core1_0.CoreDeviceDriver

	VertexBuffer       core1_0.Buffer
	VertexBufferMemory core1_0.DeviceMemory
	IndexBuffer        core1_0.Buffer
	IndexBufferMemory  core1_0.DeviceMemory
	IndexCount         int
}

// UploadGeometry validates the geometry and copies it into host-visible buffers. It only
// touches the device, never the queue, so it may run alongside pipeline creation.
func UploadGeometry(d *Device, vertices []Vertex, indices []uint16) (*GeometryBuffers, error) {
	err := ValidateGeometry(vertices, indices)
	if err != nil {
		return nil, errors.Wrap(err, "validate geometry")
	}

	g := &GeometryBuffers{
		driver:     d.Driver,
		IndexCount: len(indices),
	}

	g.VertexBuffer, g.VertexBufferMemory, err = createBuffer(d, binary.Size(vertices), core1_0.BufferUsageVertexBuffer, vertices)
	if err != nil {
		g.Destroy()
		return nil, errors.Wrap(err, "vertex buffer")
	}

	g.IndexBuffer, g.IndexBufferMemory, err = createBuffer(d, binary.Size(indices), core1_0.BufferUsageIndexBuffer, indices)
	if err != nil {
		g.Destroy()
		return nil, errors.Wrap(err, "index buffer")
	}

	return g, nil
}

func (g *GeometryBuffers) Destroy() {
	if g.IndexBuffer.Initialized() {
		g.driver.DestroyBuffer(g.IndexBuffer, nil)
		g.IndexBuffer = core1_0.Buffer{}
	}

	if g.IndexBufferMemory.Initialized() {
		g.driver.FreeMemory(g.IndexBufferMemory, nil)
		g.IndexBufferMemory = core1_0.DeviceMemory{}
	}

	if g.VertexBuffer.Initialized() {
		g.driver.DestroyBuffer(g.VertexBuffer, nil)
		g.VertexBuffer = core1_0.Buffer{}
	}

	if g.VertexBufferMemory.Initialized() {
		g.driver.FreeMemory(g.VertexBufferMemory, nil)
		g.VertexBufferMemory = core1_0.DeviceMemory{}
	}
}

func createBuffer(d *Device, size int, usage core1_0.BufferUsageFlags, data any) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	buffer, _, err := d.Driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	memRequirements := d.Driver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := findMemoryType(d, memRequirements.MemoryTypeBits, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return buffer, core1_0.DeviceMemory{}, err
	}

	memory, _, err := d.Driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return buffer, core1_0.DeviceMemory{}, err
	}

	_, err = d.Driver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		return buffer, memory, err
	}

	return buffer, memory, writeData(d.Driver, memory, 0, data)
}

func findMemoryType(d *Device, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.Instance.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Errorf("no memory type matches filter %x with properties %s", typeFilter, properties)
}

func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)

	memoryPtr, _, err := driver.MapMemory(memory, offset, bufferSize, 0)
	if err != nil {
		return err
	}
	defer driver.UnmapMemory(memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}
