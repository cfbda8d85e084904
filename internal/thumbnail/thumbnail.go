// Package thumbnail renders scaled PNG previews of scans and screenshots.
package thumbnail

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Generator scales images so that their longest edge fits Size pixels.
// Images already small enough are re-encoded without scaling.
type Generator struct {
	Size int
}

func NewGenerator(size int) *Generator {
	return &Generator{Size: size}
}

// Render decodes r and writes the PNG thumbnail to w.
func (g *Generator) Render(r io.Reader, w io.Writer) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	dst := g.scale(src)
	if err := png.Encode(w, dst); err != nil {
		return fmt.Errorf("encoding thumbnail: %w", err)
	}
	return nil
}

func (g *Generator) scale(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if g.Size <= 0 || (w <= g.Size && h <= g.Size) {
		return src
	}

	tw, th := g.Size, g.Size
	if w >= h {
		th = max(1, h*g.Size/w)
	} else {
		tw = max(1, w*g.Size/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// RenderFile writes a thumbnail of srcPath to destPath, creating the parent
// directory. destPath is written through a temp file and renamed.
func (g *Generator) RenderFile(srcPath, destPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating thumbnail directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-thumb-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := g.Render(in, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("rendering %s: %w", srcPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing thumbnail: %w", err)
	}
	return os.Rename(tmp.Name(), destPath)
}

// PathFor returns where the thumbnail of fileName lives under dir.
func PathFor(dir, fileName string) string {
	return filepath.Join(dir, "thumbnails", fileName+".png")
}
