// Package output renders catalog records for the CLI. The format set is
// closed: simple, json, pretty-json, and chrysoberyl.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"al.essio.dev/pkg/shellescape"

	"github.com/anekos/noir"
	"github.com/anekos/noir/imagemeta"
)

// Format selects one of the output renderings.
type Format int

const (
	// Simple prints one path per line.
	Simple Format = iota
	// JSON prints one compact JSON object per line.
	JSON
	// PrettyJSON prints one indented JSON object per line.
	PrettyJSON
	// Chrysoberyl prints @push-image commands for the chrysoberyl viewer.
	Chrysoberyl
)

// Parse resolves a format name or its single-letter shorthand.
func Parse(s string) (Format, error) {
	switch s {
	case "s", "simple":
		return Simple, nil
	case "j", "json":
		return JSON, nil
	case "p", "pretty-json":
		return PrettyJSON, nil
	case "c", "chrysoberyl":
		return Chrysoberyl, nil
	}
	return 0, &noir.InvalidOutputFormatError{Name: s}
}

// Write renders one record to w.
func (f Format) Write(w io.Writer, meta *imagemeta.Meta) error {
	switch f {
	case Simple:
		_, err := fmt.Fprintln(w, meta.Path)
		return noir.MapPipe(err)
	case JSON:
		encoded, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(encoded))
		return noir.MapPipe(err)
	case PrettyJSON:
		encoded, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(encoded))
		return noir.MapPipe(err)
	case Chrysoberyl:
		_, err := fmt.Fprintf(w, "@push-image --meta width=%d --meta height=%d --meta format=%s",
			meta.Width, meta.Height, meta.Format)
		if err != nil {
			return noir.MapPipe(err)
		}
		if meta.Dhash != nil {
			if _, err := fmt.Fprintf(w, " --meta dhash=%s", *meta.Dhash); err != nil {
				return noir.MapPipe(err)
			}
		}
		_, err = fmt.Fprintf(w, " %s\n", shellescape.Quote(meta.Path))
		return noir.MapPipe(err)
	}
	return &noir.InvalidOutputFormatError{Name: fmt.Sprintf("%d", f)}
}
