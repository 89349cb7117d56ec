package output

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anekos/noir"
	"github.com/anekos/noir/imagemeta"
)

func sampleMeta() *imagemeta.Meta {
	dhash := "00ff00ff00ff00ff"
	modified := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &imagemeta.Meta{
		Path:        "/pics/cat picture.png",
		Width:       640,
		Height:      480,
		RatioWidth:  4,
		RatioHeight: 3,
		Format:      "png",
		Size:        12345,
		Dhash:       &dhash,
		Modified:    &modified,
	}
}

func render(t *testing.T, f Format, meta *imagemeta.Meta) string {
	t.Helper()
	var b strings.Builder
	if err := f.Write(&b, meta); err != nil {
		t.Fatalf("writing: %v", err)
	}
	return b.String()
}

func TestParse(t *testing.T) {
	for name, want := range map[string]Format{
		"s": Simple, "simple": Simple,
		"j": JSON, "json": JSON,
		"p": PrettyJSON, "pretty-json": PrettyJSON,
		"c": Chrysoberyl, "chrysoberyl": Chrysoberyl,
	} {
		got, err := Parse(name)
		if err != nil || got != want {
			t.Errorf("Parse(%q) = %v, %v", name, got, err)
		}
	}

	_, err := Parse("xml")
	var bad *noir.InvalidOutputFormatError
	if !errors.As(err, &bad) {
		t.Fatalf("expected InvalidOutputFormatError, got %v", err)
	}
}

func TestSimple(t *testing.T) {
	got := render(t, Simple, sampleMeta())
	if got != "/pics/cat picture.png\n" {
		t.Fatalf("got %q", got)
	}
}

func TestJSONIsOneLine(t *testing.T) {
	got := render(t, JSON, sampleMeta())
	if strings.Count(got, "\n") != 1 || !strings.HasSuffix(got, "\n") {
		t.Fatalf("expected one line, got %q", got)
	}
	var decoded imagemeta.Meta
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if decoded.Path != "/pics/cat picture.png" || decoded.Width != 640 {
		t.Fatalf("decoded %+v", decoded)
	}
}

func TestChrysoberyl(t *testing.T) {
	got := render(t, Chrysoberyl, sampleMeta())
	want := "@push-image --meta width=640 --meta height=480 --meta format=png --meta dhash=00ff00ff00ff00ff '/pics/cat picture.png'\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChrysoberylWithoutDhash(t *testing.T) {
	meta := sampleMeta()
	meta.Dhash = nil
	got := render(t, Chrysoberyl, meta)
	if strings.Contains(got, "dhash") {
		t.Fatalf("dhash should be omitted: %q", got)
	}
}
