package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
)

const thumbnailMaxDim = 320

// ErrUnsupportedMedia is returned for payloads that are not images.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Store writes uploaded images to a local directory and hands back the URL
// they are served under. It stands in for an external object host: callers
// only ever see the returned content URL.
type Store struct {
	dir     string
	baseURL string
	log     *zerolog.Logger
}

// NewStore creates the media directory if needed. baseURL is the public
// path prefix the directory is served under, e.g. "/media".
func NewStore(dir, baseURL string, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     logger,
	}, nil
}

// Dir returns the directory backing the store, for static file serving.
func (s *Store) Dir() string {
	return s.dir
}

// SaveDataURL decodes a base64 data URL (or bare base64 payload), verifies
// it is an image, stores it under a generated name and returns its URL. A
// bounded thumbnail is written alongside the original when the format is
// decodable.
func (s *Store) SaveDataURL(_ context.Context, dataURL string) (string, error) {
	blob, err := decodePayload(dataURL)
	if err != nil {
		return "", err
	}

	kind := mimetype.Detect(blob)
	if !strings.HasPrefix(kind.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, kind.String())
	}

	name := uuid.NewString() + kind.Extension()
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}

	s.writeThumbnail(name, blob)

	return s.baseURL + "/" + name, nil
}

// writeThumbnail is best effort: formats the stdlib cannot decode are
// served without one.
func (s *Store) writeThumbnail(name string, blob []byte) {
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		s.log.Debug().Str("file", name).Msg("skipping thumbnail for undecodable image")
		return
	}

	thumb := resize.Thumbnail(thumbnailMaxDim, thumbnailMaxDim, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		s.log.Warn().Err(err).Str("file", name).Msg("encode thumbnail")
		return
	}

	thumbPath := filepath.Join(s.dir, thumbName(name))
	if err := os.WriteFile(thumbPath, buf.Bytes(), 0o644); err != nil {
		s.log.Warn().Err(err).Str("file", name).Msg("write thumbnail")
	}
}

func thumbName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_thumb.jpg"
}

// decodePayload accepts both "data:image/png;base64,AAAA" and bare base64.
func decodePayload(payload string) ([]byte, error) {
	raw := payload
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrUnsupportedMedia)
		}
		raw = payload[idx+1:]
	}

	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMedia, err)
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupportedMedia)
	}
	return blob, nil
}
