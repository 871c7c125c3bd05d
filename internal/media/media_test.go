package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := zerolog.Nop()
	s, err := NewStore(t.TempDir(), "/media", &logger)
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}
	return s
}

func pngDataURL(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSaveDataURL_StoresImageAndThumbnail(t *testing.T) {
	s := newTestStore(t)

	url, err := s.SaveDataURL(context.Background(), pngDataURL(t))
	if err != nil {
		t.Fatalf("SaveDataURL failed: %v", err)
	}
	if !strings.HasPrefix(url, "/media/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url: %q", url)
	}

	name := strings.TrimPrefix(url, "/media/")
	if _, err := os.Stat(filepath.Join(s.Dir(), name)); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), thumbName(name))); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
}

func TestSaveDataURL_AcceptsBareBase64(t *testing.T) {
	s := newTestStore(t)

	dataURL := pngDataURL(t)
	bare := dataURL[strings.Index(dataURL, ",")+1:]

	url, err := s.SaveDataURL(context.Background(), bare)
	if err != nil {
		t.Fatalf("SaveDataURL failed: %v", err)
	}
	if !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url: %q", url)
	}
}

func TestSaveDataURL_RejectsNonImage(t *testing.T) {
	s := newTestStore(t)

	payload := base64.StdEncoding.EncodeToString([]byte("plain text, not an image"))
	if _, err := s.SaveDataURL(context.Background(), payload); !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}
}

func TestSaveDataURL_RejectsMalformedPayload(t *testing.T) {
	s := newTestStore(t)

	cases := []string{
		"data:image/png;base64",  // no comma
		"data:image/png;base64,", // empty payload
		"%%% not base64 %%%",
	}
	for _, payload := range cases {
		if _, err := s.SaveDataURL(context.Background(), payload); !errors.Is(err, ErrUnsupportedMedia) {
			t.Fatalf("payload %q: expected ErrUnsupportedMedia, got %v", payload, err)
		}
	}
}
