package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// Source resolves scene stills. A nil image with a nil error never occurs;
// a failed decode is reported so the caller can decide to skip it.
type Source interface {
	Count() int
	Image(index int) (image.Image, error)
}

// ImageSource decodes stills from files on disk.
type ImageSource struct {
	paths []string
}

func NewImageSource(paths []string) *ImageSource {
	return &ImageSource{paths: paths}
}

func (s *ImageSource) Count() int {
	return len(s.paths)
}

func (s *ImageSource) Image(index int) (image.Image, error) {
	if index < 0 || index >= len(s.paths) || s.paths[index] == "" {
		return nil, fmt.Errorf("нет изображения для сцены %d", index)
	}
	return DecodeFile(s.paths[index])
}

func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Preload decodes every image concurrently before playback. Failures are
// logged and leave a nil slot: the compositor skips missing images.
func Preload(ctx context.Context, src Source, workers int) ([]image.Image, error) {
	out := make([]image.Image, src.Count())
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range out {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := src.Image(i)
			if err != nil {
				log.Printf("[!] Изображение сцены %d пропущено: %v", i+1, err)
				return nil
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
