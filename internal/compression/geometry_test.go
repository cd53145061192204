package compression

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/scene"
)

func testContent() *scene.Content {
	floor := &scene.Material{Name: "floor", Color: mgl32.Vec3{0.5, 0.5, 0.5}, Roughness: 0.9}
	wall := &scene.Material{Name: "wall", Color: mgl32.Vec3{1, 1, 1}, Roughness: 0.4}

	c := &scene.Content{}
	c.AddMesh(scene.Plane("plane", 10, 10), floor, mgl32.Translate3D(1000, 0, -2000))
	c.AddOwnedMesh(scene.Box("box", 1, 2, 1), wall, mgl32.Translate3D(1002, 1, -2001))
	c.AddMesh(scene.Box("box2", 1, 1, 1), wall, mgl32.Ident4())
	c.AddLight(&scene.Light{Position: mgl32.Vec3{1, 2, 3}, Color: mgl32.Vec3{1, 0.9, 0.8}, Intensity: 0.7})
	return c
}

func TestFlattenBakesTransforms(t *testing.T) {
	g, err := Flatten(testContent())
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if len(g.Vertices) != 4+8+8 {
		t.Fatalf("expected 20 vertices, got %d", len(g.Vertices))
	}
	if len(g.Indices) != 6+36+36 {
		t.Fatalf("expected 78 indices, got %d", len(g.Indices))
	}
	if len(g.Materials) != 2 {
		t.Fatalf("expected 2 materials, got %d", len(g.Materials))
	}
	// The two wall boxes are adjacent and share a material.
	if len(g.Groups) != 2 || g.Groups[1].Count != 72 {
		t.Fatalf("expected merged wall group, got %+v", g.Groups)
	}
	if g.Vertices[0].X() < 990 || g.Vertices[0].Z() > -1990 {
		t.Errorf("expected plane vertex translated, got %v", g.Vertices[0])
	}
	for _, idx := range g.Indices[6:42] {
		if idx < 4 || idx >= 12 {
			t.Fatalf("box index %d not offset into its vertex range", idx)
		}
	}
}

func TestFlattenRejectsInvalidContent(t *testing.T) {
	if _, err := Flatten(nil); err == nil {
		t.Error("expected error for nil content")
	}

	c := testContent()
	c.Dispose()
	if _, err := Flatten(c); err == nil {
		t.Error("expected error for disposed content")
	}

	broken := &scene.Content{}
	broken.AddMesh(&scene.Geometry{Vertices: []mgl32.Vec3{{}}, Indices: []uint32{0, 1, 2}}, &scene.Material{}, mgl32.Ident4())
	if _, err := Flatten(broken); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestEncodeDecodePreservesGeometry(t *testing.T) {
	g, err := Flatten(testContent())
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	data, err := Encode(g)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data[:4]) != GeometryMagic {
		t.Fatalf("expected magic %q, got %q", GeometryMagic, data[:4])
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Vertices) != len(g.Vertices) || len(decoded.Indices) != len(g.Indices) {
		t.Fatalf("size mismatch after decode")
	}
	for i, v := range g.Vertices {
		for axis := 0; axis < 3; axis++ {
			if diff := math.Abs(float64(decoded.Vertices[i][axis] - v[axis])); diff > Quantization {
				t.Fatalf("vertex %d axis %d off by %g", i, axis, diff)
			}
		}
	}
	for i := range g.Indices {
		if decoded.Indices[i] != g.Indices[i] {
			t.Fatalf("index %d: expected %d, got %d", i, g.Indices[i], decoded.Indices[i])
		}
	}
	if decoded.Materials[1].Name != "wall" || decoded.Materials[1].Roughness != 0.4 {
		t.Errorf("unexpected material %+v", decoded.Materials[1])
	}
	if len(decoded.Lights) != 1 || decoded.Lights[0].Intensity != 0.7 {
		t.Errorf("unexpected lights %+v", decoded.Lights)
	}
	if decoded.Groups[0] != g.Groups[0] {
		t.Errorf("group mismatch: %+v vs %+v", decoded.Groups[0], g.Groups[0])
	}
}

func TestEncodeUsesWideIndicesForLargeMeshes(t *testing.T) {
	n := math.MaxUint16 + 10
	geom := &scene.Geometry{Vertices: make([]mgl32.Vec3, n), Indices: []uint32{0, uint32(n - 1), uint32(n - 2)}}
	for i := range geom.Vertices {
		geom.Vertices[i] = mgl32.Vec3{float32(i % 100), 0, float32(i / 100)}
	}
	c := &scene.Content{}
	c.AddMesh(geom, &scene.Material{Name: "big"}, mgl32.Ident4())

	g, _ := Flatten(c)
	data, err := Encode(g)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if data[5]&flagIndex32 == 0 {
		t.Fatal("expected 32-bit index flag")
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Indices[1] != uint32(n-1) {
		t.Errorf("expected index %d, got %d", n-1, decoded.Indices[1])
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	g, _ := Flatten(testContent())
	valid, _ := Encode(g)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("NOPE"), valid[4:]...)},
		{"truncated", valid[:len(valid)/2]},
		{"bad version", func() []byte {
			b := append([]byte(nil), valid...)
			b[4] = 99
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestCompressContent(t *testing.T) {
	compressed, rawSize, err := CompressContent(testContent())
	if err != nil {
		t.Fatalf("CompressContent failed: %v", err)
	}
	if len(compressed) == 0 || rawSize == 0 {
		t.Fatal("expected compressed output")
	}
	g, err := DecompressContent(compressed)
	if err != nil {
		t.Fatalf("DecompressContent failed: %v", err)
	}
	if len(g.Vertices) != 20 {
		t.Errorf("expected 20 vertices, got %d", len(g.Vertices))
	}

	if _, err := DecompressContent([]byte("not zstd")); err == nil {
		t.Error("expected error for garbage input")
	}
}
