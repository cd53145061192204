package compression

import (
	"encoding/base64"
	"fmt"

	"github.com/worldstream/server/internal/scene"
)

// FormatBinaryZstd names the payload encoding used on the wire.
const FormatBinaryZstd = "binary_zstd"

// CompressedGeometry is chunk geometry ready for JSON transmission.
type CompressedGeometry struct {
	Format           string `json:"format"`            // "binary_zstd"
	Data             string `json:"data"`              // base64 of the compressed bytes
	Size             int    `json:"size"`              // compressed size in bytes
	UncompressedSize int    `json:"uncompressed_size"` // for progress tracking
}

// FormatCompressedGeometry wraps compressed bytes for transmission.
func FormatCompressedGeometry(compressedData []byte, uncompressedSize int) *CompressedGeometry {
	return &CompressedGeometry{
		Format:           FormatBinaryZstd,
		Data:             base64.StdEncoding.EncodeToString(compressedData),
		Size:             len(compressedData),
		UncompressedSize: uncompressedSize,
	}
}

// CompressAndFormat compresses chunk content and wraps it for transmission.
func CompressAndFormat(c *scene.Content) (*CompressedGeometry, error) {
	data, rawSize, err := CompressContent(c)
	if err != nil {
		return nil, err
	}
	return FormatCompressedGeometry(data, rawSize), nil
}

// FormatGeometry compresses flattened geometry and wraps it for transmission.
func FormatGeometry(g *Geometry) (*CompressedGeometry, error) {
	data, rawSize, err := CompressGeometry(g)
	if err != nil {
		return nil, err
	}
	return FormatCompressedGeometry(data, rawSize), nil
}

// ParseCompressedGeometry decodes a payload produced by CompressAndFormat.
func ParseCompressedGeometry(p *CompressedGeometry) (*Geometry, error) {
	if p == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	if p.Format != FormatBinaryZstd {
		return nil, fmt.Errorf("unsupported geometry format %q", p.Format)
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return DecompressContent(data)
}

// EstimateUncompressedSize approximates the encoded size of c without
// encoding it.
func EstimateUncompressedSize(c *scene.Content) int {
	if c == nil {
		return 0
	}
	const headerSize = 36
	size := headerSize
	materials := make(map[*scene.Material]struct{})
	var last *scene.Material
	for i, mesh := range c.Meshes {
		if mesh.Geometry == nil {
			continue
		}
		if i == 0 || mesh.Material != last {
			size += 10 // group
		}
		last = mesh.Material
		size += len(mesh.Geometry.Vertices) * 12
		size += len(mesh.Geometry.Indices) * 2
		if mesh.Material != nil {
			if _, ok := materials[mesh.Material]; !ok {
				materials[mesh.Material] = struct{}{}
				size += 1 + len(mesh.Material.Name) + 16
			}
		}
	}
	size += len(c.Lights) * 28
	return size
}
