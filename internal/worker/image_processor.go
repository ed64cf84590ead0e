package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/storage"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Rendition is one thumbnail size, bounded by width.
type Rendition struct {
	Name     string
	MaxWidth int
}

var DefaultRenditions = []Rendition{
	{"small", 150},
	{"medium", 400},
	{"large", 800},
}

// ImageProcessor renders thumbnails of stored originals back into the
// object store.
type ImageProcessor struct {
	objects    storage.ObjectStore
	renditions []Rendition
}

func NewImageProcessor(objects storage.ObjectStore) *ImageProcessor {
	return &ImageProcessor{objects: objects, renditions: DefaultRenditions}
}

func (ip *ImageProcessor) ProcessImage(ctx context.Context, item *database.PortfolioItem) (database.ThumbnailResult, error) {
	rc, err := ip.objects.Open(ctx, item.StorageKey)
	if err != nil {
		return database.ThumbnailResult{}, fmt.Errorf("open original: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return database.ThumbnailResult{}, fmt.Errorf("read original: %w", err)
	}

	origImg, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return database.ThumbnailResult{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := origImg.Bounds()
	res := database.ThumbnailResult{Width: bounds.Dx(), Height: bounds.Dy()}

	keys := make([]string, len(ip.renditions))
	for i, r := range ip.renditions {
		key, err := ip.saveThumbnail(ctx, item.ID, origImg, r)
		if err != nil {
			return database.ThumbnailResult{}, err
		}
		keys[i] = key
	}
	if len(keys) > 0 {
		res.Small = keys[0]
	}
	if len(keys) > 1 {
		res.Medium = keys[1]
	}
	if len(keys) > 2 {
		res.Large = keys[2]
	}
	return res, nil
}

func (ip *ImageProcessor) saveThumbnail(ctx context.Context, itemID string, img image.Image, r Rendition) (string, error) {
	width := r.MaxWidth
	if w := img.Bounds().Dx(); w < width {
		width = w // never upscale
	}

	// Height 0 keeps the aspect ratio.
	thumb := imaging.Resize(img, width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode %s thumbnail: %w", r.Name, err)
	}

	key := storage.ThumbnailKey(itemID, r.Name)
	if _, err := ip.objects.Put(ctx, key, "image/jpeg", buf.Bytes()); err != nil {
		return "", fmt.Errorf("store %s thumbnail: %w", r.Name, err)
	}
	return key, nil
}
