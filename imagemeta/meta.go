// Package imagemeta extracts per-file image metadata: dimensions, format,
// animation flag, file stats, and the optional 8x8 difference hash used
// for near-duplicate search.
package imagemeta

import "time"

// Meta is one catalog record.
type Meta struct {
	Path        string     `json:"path"`
	Width       uint32     `json:"width"`
	Height      uint32     `json:"height"`
	RatioWidth  uint32     `json:"ratio_w"`
	RatioHeight uint32     `json:"ratio_h"`
	Format      string     `json:"format"`
	Animation   bool       `json:"animation"`
	Size        uint32     `json:"file_size"`
	Dhash       *string    `json:"dhash,omitempty"`
	Created     *time.Time `json:"created,omitempty"`
	Modified    *time.Time `json:"modified,omitempty"`
	Accessed    *time.Time `json:"accessed,omitempty"`
}

// Ratio reduces (w, h) by their greatest common divisor. If either
// dimension is zero both results are zero.
func Ratio(w, h uint32) (uint32, uint32) {
	if w == 0 || h == 0 {
		return 0, 0
	}
	g := Gcd(w, h)
	return w / g, h / g
}

// Gcd computes the greatest common divisor of x and y.
func Gcd(x, y uint32) uint32 {
	for y != 0 {
		x, y = y, x%y
	}
	return x
}
