package render

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"
)

type Vertex struct {
	Position vkngmath.Vec2[float32]
	Color    vkngmath.Vec3[float32]
}

// QuadVertices returns the four corners of the quad, counter-clockwise from bottom left.
func QuadVertices() []Vertex {
	return []Vertex{
		{Position: vkngmath.Vec2[float32]{X: -0.5, Y: -0.5}, Color: vkngmath.Vec3[float32]{X: 1, Y: 0, Z: 1}},
		{Position: vkngmath.Vec2[float32]{X: 0.5, Y: -0.5}, Color: vkngmath.Vec3[float32]{X: 0, Y: 1, Z: 0}},
		{Position: vkngmath.Vec2[float32]{X: 0.5, Y: 0.5}, Color: vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 1}},
		{Position: vkngmath.Vec2[float32]{X: -0.5, Y: 0.5}, Color: vkngmath.Vec3[float32]{X: 1, Y: 1, Z: 0}},
	}
}

// QuadIndices returns the two triangles covering the quad.
func QuadIndices() []uint16 {
	return []uint16{0, 1, 2, 2, 3, 0}
}

func getVertexBindingDescription() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func getVertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// Triangles resolves an index list against its vertices.
func Triangles(vertices []Vertex, indices []uint16) ([][3]mgl32.Vec2, error) {
	if len(indices)%3 != 0 {
		return nil, errors.Errorf("index count %d is not a multiple of 3", len(indices))
	}

	triangles := make([][3]mgl32.Vec2, 0, len(indices)/3)
	for i := 0; i < len(indices); i += 3 {
		var triangle [3]mgl32.Vec2
		for corner := 0; corner < 3; corner++ {
			index := int(indices[i+corner])
			if index >= len(vertices) {
				return nil, errors.Errorf("index %d at position %d is outside [0,%d]", index, i+corner, len(vertices)-1)
			}
			triangle[corner] = mgl32.Vec2{vertices[index].Position.X, vertices[index].Position.Y}
		}
		triangles = append(triangles, triangle)
	}

	return triangles, nil
}

// signedArea is positive for counter-clockwise triangles.
func signedArea(triangle [3]mgl32.Vec2) float32 {
	ab := triangle[1].Sub(triangle[0]).Vec3(0)
	ac := triangle[2].Sub(triangle[0]).Vec3(0)
	return ab.Cross(ac).Z() / 2
}

// polygonArea is the shoelace area of the vertices taken in order.
func polygonArea(vertices []Vertex) float32 {
	var sum float32
	for i := range vertices {
		a := vertices[i].Position
		b := vertices[(i+1)%len(vertices)].Position
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// ValidateGeometry checks that the indexed triangles tile the convex polygon formed by the
// vertices: every index is in range, every triangle shares the polygon's winding, and the
// triangle areas add up to the polygon area.
func ValidateGeometry(vertices []Vertex, indices []uint16) error {
	triangles, err := Triangles(vertices, indices)
	if err != nil {
		return err
	}
	if len(triangles) == 0 {
		return errors.New("geometry has no triangles")
	}

	polygon := polygonArea(vertices)
	var covered float32
	for i, triangle := range triangles {
		area := signedArea(triangle)
		if area == 0 || (area > 0) != (polygon > 0) {
			return errors.Errorf("triangle %d is degenerate or wound against the polygon", i)
		}
		covered += area
	}

	if math.Abs(float64(covered-polygon)) > 1e-6 {
		return errors.Errorf("triangles cover %f of polygon area %f", covered, polygon)
	}

	return nil
}
