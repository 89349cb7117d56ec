package imagemeta

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/ftrvxmtrx/tga"

	// Probe and decode support for the catalog's format vocabulary:
	// bmp, gif, hdr, ico, jpeg, png, pnm, tga, tiff, webp.
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/biessek/golang-ico"
	_ "github.com/jbuchbinder/gopnm"
	_ "github.com/mdouchement/hdr/codec/rgbe"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FromFile reads metadata for one image file. With computeDhash the whole
// file is decoded and the difference hash is filled in; the decoded
// dimensions supersede the probe's.
func FromFile(path string, computeDhash bool) (*Meta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// TGA carries no magic bytes, so content sniffing never finds
		// it; dispatch on the extension instead.
		if isTGA(path) {
			cfg, err = tga.DecodeConfig(bytes.NewReader(data))
			format = "tga"
		}
		if err != nil {
			return nil, fmt.Errorf("probing image: %w", err)
		}
	}
	format = normalizeFormat(format)

	meta := &Meta{
		Path:      path,
		Width:     uint32(cfg.Width),
		Height:    uint32(cfg.Height),
		Format:    format,
		Animation: format == "gif" && isAnimated(data),
		Size:      uint32(info.Size()),
	}

	modified := info.ModTime().UTC()
	meta.Modified = &modified
	created, accessed := statTimes(info)
	meta.Created = created
	meta.Accessed = accessed

	if computeDhash {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil && isTGA(path) {
			img, err = tga.Decode(bytes.NewReader(data))
		}
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		hash, err := goimagehash.DifferenceHash(img)
		if err != nil {
			return nil, fmt.Errorf("computing dhash: %w", err)
		}
		dhash := fmt.Sprintf("%016x", hash.GetHash())
		meta.Dhash = &dhash

		bounds := img.Bounds()
		meta.Width = uint32(bounds.Dx())
		meta.Height = uint32(bounds.Dy())
	}

	meta.RatioWidth, meta.RatioHeight = Ratio(meta.Width, meta.Height)
	return meta, nil
}

// normalizeFormat folds decoder-registered names into the catalog
// vocabulary: the netpbm decoders report pbm, pgm, or ppm per subformat.
func normalizeFormat(name string) string {
	switch name {
	case "pbm", "pgm", "ppm":
		return "pnm"
	}
	return name
}

func isTGA(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".tga")
}

// isAnimated reports whether GIF data holds more than one frame.
func isAnimated(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return len(g.Image) > 1
}

func utcTime(sec, nsec int64) *time.Time {
	t := time.Unix(sec, nsec).UTC()
	return &t
}
