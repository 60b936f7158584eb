package catalog

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ThumbnailSize is the longer-edge pixel size covers are resized to for
// the bulk-fetch "cover-bytes" thumbnail variant (spec §4.9): small enough
// to ship cheaply to every client, without the server ever storing a
// resized copy on disk.
const ThumbnailSize = 300

// GenerateThumbnail decodes original (whatever image format the library
// file is in) and re-encodes a JPEG resized so its longer edge is
// ThumbnailSize pixels, matching the original's aspect ratio.
func GenerateThumbnail(original []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, errors.Wrap(err, "catalog: decode cover image")
	}

	b := img.Bounds()
	w, h := ThumbnailSize, 0
	if b.Dy() > b.Dx() {
		w, h = 0, ThumbnailSize
	}
	resized := imaging.Resize(img, w, h, imaging.Box)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG); err != nil {
		return nil, errors.Wrap(err, "catalog: encode cover thumbnail")
	}
	return buf.Bytes(), nil
}

// SetThumbnail stores freshly generated thumbnail bytes without disturbing
// whatever original bytes are already cached.
func (c *CoverCache) SetThumbnail(thumbnail []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thumbnail = thumbnail
}
