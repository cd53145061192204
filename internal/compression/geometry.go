package compression

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/klauspost/compress/zstd"
	"github.com/worldstream/server/internal/scene"
)

const (
	// GeometryMagic opens every encoded chunk.
	GeometryMagic = "WSCH"
	// GeometryVersion is the current binary layout.
	GeometryVersion = 1
	// Quantization is the vertex precision in world units.
	Quantization = 0.01
)

const flagIndex32 = 0x01

// ErrMalformed is returned when a payload cannot be decoded.
var ErrMalformed = errors.New("malformed chunk geometry")

// GeometryHeader is the fixed-size prefix of an encoded chunk.
type GeometryHeader struct {
	Magic         [4]byte
	Version       uint8
	Flags         uint8 // bit 0: 32-bit indices
	MaterialCount uint16
	GroupCount    uint32
	VertexCount   uint32
	IndexCount    uint32
	LightCount    uint32
	Base          [3]float32 // added to every dequantized vertex
}

// Group is a run of indices drawn with one material.
type Group struct {
	Material uint16
	Start    uint32
	Count    uint32
}

// LightRecord is a light as it travels on the wire.
type LightRecord struct {
	Position  [3]float32
	Color     [3]float32
	Intensity float32
}

// MaterialRecord is a material as it travels on the wire.
type MaterialRecord struct {
	Name      string     `json:"name"`
	Color     mgl32.Vec3 `json:"color"`
	Roughness float32    `json:"roughness"`
}

// Geometry is the flattened, world-space form of a chunk's content.
type Geometry struct {
	Materials []MaterialRecord
	Groups    []Group
	Vertices  []mgl32.Vec3
	Indices   []uint32
	Lights    []LightRecord
}

// Flatten bakes every mesh transform into world-space vertices and merges
// meshes that share a material into index groups.
func Flatten(c *scene.Content) (*Geometry, error) {
	if c == nil {
		return nil, fmt.Errorf("content is nil")
	}
	if c.Disposed() {
		return nil, fmt.Errorf("content is disposed")
	}

	g := &Geometry{}
	materials := make(map[*scene.Material]uint16)
	for i, mesh := range c.Meshes {
		if mesh.Geometry == nil || mesh.Material == nil {
			return nil, fmt.Errorf("mesh %d is missing geometry or material", i)
		}
		mat, ok := materials[mesh.Material]
		if !ok {
			if len(g.Materials) >= math.MaxUint16 {
				return nil, fmt.Errorf("too many materials")
			}
			mat = uint16(len(g.Materials))
			materials[mesh.Material] = mat
			g.Materials = append(g.Materials, MaterialRecord{
				Name:      mesh.Material.Name,
				Color:     mesh.Material.Color,
				Roughness: mesh.Material.Roughness,
			})
		}

		offset := uint32(len(g.Vertices))
		for _, v := range mesh.Geometry.Vertices {
			g.Vertices = append(g.Vertices, mgl32.TransformCoordinate(v, mesh.Transform))
		}
		start := uint32(len(g.Indices))
		for _, idx := range mesh.Geometry.Indices {
			if int(idx) >= len(mesh.Geometry.Vertices) {
				return nil, fmt.Errorf("mesh %d: index %d out of range", i, idx)
			}
			g.Indices = append(g.Indices, idx+offset)
		}
		g.Groups = appendGroup(g.Groups, mat, start, uint32(len(mesh.Geometry.Indices)))
	}

	for _, l := range c.Lights {
		g.Lights = append(g.Lights, LightRecord{Position: l.Position, Color: l.Color, Intensity: l.Intensity})
	}
	return g, nil
}

// appendGroup extends the last group when it continues with the same material.
func appendGroup(groups []Group, mat uint16, start, count uint32) []Group {
	if n := len(groups); n > 0 {
		last := &groups[n-1]
		if last.Material == mat && last.Start+last.Count == start {
			last.Count += count
			return groups
		}
	}
	return append(groups, Group{Material: mat, Start: start, Count: count})
}

// Encode writes g in the binary chunk layout.
func Encode(g *Geometry) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}
	base := minCorner(g.Vertices)
	header := GeometryHeader{
		Version:       GeometryVersion,
		MaterialCount: uint16(len(g.Materials)),
		GroupCount:    uint32(len(g.Groups)),
		VertexCount:   uint32(len(g.Vertices)),
		IndexCount:    uint32(len(g.Indices)),
		LightCount:    uint32(len(g.Lights)),
		Base:          base,
	}
	copy(header.Magic[:], GeometryMagic)
	wide := len(g.Vertices) > math.MaxUint16
	if wide {
		header.Flags |= flagIndex32
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for _, m := range g.Materials {
		if len(m.Name) > math.MaxUint8 {
			return nil, fmt.Errorf("material name %q too long", m.Name)
		}
		buf.WriteByte(uint8(len(m.Name)))
		buf.WriteString(m.Name)
		if err := binary.Write(&buf, binary.LittleEndian, [4]float32{m.Color[0], m.Color[1], m.Color[2], m.Roughness}); err != nil {
			return nil, fmt.Errorf("failed to write material: %w", err)
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, g.Groups); err != nil {
		return nil, fmt.Errorf("failed to write groups: %w", err)
	}

	quantized := make([][3]int32, len(g.Vertices))
	for i, v := range g.Vertices {
		for axis := 0; axis < 3; axis++ {
			q := math.Round(float64(v[axis]-base[axis]) / Quantization)
			if q > math.MaxInt32 {
				return nil, fmt.Errorf("vertex %d exceeds quantization range", i)
			}
			quantized[i][axis] = int32(q)
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, quantized); err != nil {
		return nil, fmt.Errorf("failed to write vertices: %w", err)
	}

	if wide {
		if err := binary.Write(&buf, binary.LittleEndian, g.Indices); err != nil {
			return nil, fmt.Errorf("failed to write 32-bit indices: %w", err)
		}
	} else {
		narrow := make([]uint16, len(g.Indices))
		for i, idx := range g.Indices {
			narrow[i] = uint16(idx)
		}
		if err := binary.Write(&buf, binary.LittleEndian, narrow); err != nil {
			return nil, fmt.Errorf("failed to write 16-bit indices: %w", err)
		}
	}

	if err := binary.Write(&buf, binary.LittleEndian, g.Lights); err != nil {
		return nil, fmt.Errorf("failed to write lights: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses the binary chunk layout written by Encode.
func Decode(data []byte) (*Geometry, error) {
	r := bytes.NewReader(data)
	var header GeometryHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if string(header.Magic[:]) != GeometryMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformed, header.Magic[:])
	}
	if header.Version != GeometryVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, header.Version)
	}
	// Every record takes at least one byte; reject counts the payload cannot hold.
	total := uint64(header.MaterialCount) + uint64(header.GroupCount) + uint64(header.VertexCount) +
		uint64(header.IndexCount) + uint64(header.LightCount)
	if total > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: counts exceed payload size", ErrMalformed)
	}

	g := &Geometry{
		Materials: make([]MaterialRecord, header.MaterialCount),
		Groups:    make([]Group, header.GroupCount),
		Vertices:  make([]mgl32.Vec3, header.VertexCount),
		Indices:   make([]uint32, header.IndexCount),
		Lights:    make([]LightRecord, header.LightCount),
	}
	for i := range g.Materials {
		n, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: material %d: %v", ErrMalformed, i, err)
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("%w: material %d name: %v", ErrMalformed, i, err)
		}
		var props [4]float32
		if err := binary.Read(r, binary.LittleEndian, &props); err != nil {
			return nil, fmt.Errorf("%w: material %d: %v", ErrMalformed, i, err)
		}
		g.Materials[i] = MaterialRecord{Name: string(name), Color: mgl32.Vec3{props[0], props[1], props[2]}, Roughness: props[3]}
	}
	if err := binary.Read(r, binary.LittleEndian, g.Groups); err != nil {
		return nil, fmt.Errorf("%w: groups: %v", ErrMalformed, err)
	}

	quantized := make([][3]int32, header.VertexCount)
	if err := binary.Read(r, binary.LittleEndian, quantized); err != nil {
		return nil, fmt.Errorf("%w: vertices: %v", ErrMalformed, err)
	}
	for i, q := range quantized {
		for axis := 0; axis < 3; axis++ {
			g.Vertices[i][axis] = header.Base[axis] + float32(float64(q[axis])*Quantization)
		}
	}

	if header.Flags&flagIndex32 != 0 {
		if err := binary.Read(r, binary.LittleEndian, g.Indices); err != nil {
			return nil, fmt.Errorf("%w: indices: %v", ErrMalformed, err)
		}
	} else {
		narrow := make([]uint16, header.IndexCount)
		if err := binary.Read(r, binary.LittleEndian, narrow); err != nil {
			return nil, fmt.Errorf("%w: indices: %v", ErrMalformed, err)
		}
		for i, idx := range narrow {
			g.Indices[i] = uint32(idx)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, g.Lights); err != nil {
		return nil, fmt.Errorf("%w: lights: %v", ErrMalformed, err)
	}

	for i, grp := range g.Groups {
		if int(grp.Material) >= len(g.Materials) || uint64(grp.Start)+uint64(grp.Count) > uint64(len(g.Indices)) {
			return nil, fmt.Errorf("%w: group %d out of range", ErrMalformed, i)
		}
	}
	for _, idx := range g.Indices {
		if idx >= header.VertexCount {
			return nil, fmt.Errorf("%w: index %d out of range", ErrMalformed, idx)
		}
	}
	return g, nil
}

func minCorner(vertices []mgl32.Vec3) [3]float32 {
	if len(vertices) == 0 {
		return [3]float32{}
	}
	lo := vertices[0]
	for _, v := range vertices[1:] {
		for axis := 0; axis < 3; axis++ {
			lo[axis] = min(lo[axis], v[axis])
		}
	}
	return lo
}

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error

	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

// EncodeAll and DecodeAll are safe for concurrent use, so one instance of
// each serves every connection.
func sharedEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder, encoderErr
}

func sharedDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil)
	})
	return decoder, decoderErr
}

// CompressContent flattens, encodes and zstd-compresses chunk content. It
// returns the compressed bytes and the uncompressed size.
func CompressContent(c *scene.Content) ([]byte, int, error) {
	g, err := Flatten(c)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to flatten content: %w", err)
	}
	return CompressGeometry(g)
}

// CompressGeometry encodes and compresses already flattened geometry. It
// touches no scene state, so it may run off the streaming loop.
func CompressGeometry(g *Geometry) ([]byte, int, error) {
	raw, err := Encode(g)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode geometry: %w", err)
	}
	enc, err := sharedEncoder()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return enc.EncodeAll(raw, nil), len(raw), nil
}

// DecompressContent reverses CompressContent.
func DecompressContent(data []byte) (*Geometry, error) {
	dec, err := sharedDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress geometry: %w", err)
	}
	return Decode(raw)
}
