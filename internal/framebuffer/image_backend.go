package framebuffer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// ImageBackend writes the RGB-expanded buffer as a PNG file on Close,
// grounded on the teacher's PNG-export helper in tools/font2rgba.go and
// video_chip.go's use of image/png for offline frame dumps.
type ImageBackend struct {
	path string
	fb   *Framebuffer
}

// NewImageBackend builds a backend that encodes fb's current contents to
// path when Close is called (spec.md §4.9 "Post-run: ... write all image
// framebuffers to disk").
func NewImageBackend(path string, fb *Framebuffer) *ImageBackend {
	return &ImageBackend{path: path, fb: fb}
}

func (b *ImageBackend) NotifyDirty() {}

func (b *ImageBackend) Close() error {
	img := image.NewRGBA(image.Rect(0, 0, b.fb.Width, b.fb.Height))
	pixels := b.fb.Pixels()

	for y := 0; y < b.fb.Height; y++ {
		for x := 0; x < b.fb.Width; x++ {
			r, g, bl := pixelRGB(b.fb.Mode, pixels, b.fb.Width, x, y)
			img.Set(x, y, color.RGBA{R: r, G: g, B: bl, A: 0xFF})
		}
	}

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("framebuffer: create %s: %w", b.path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("framebuffer: encode %s: %w", b.path, err)
	}
	return nil
}

// pixelRGB decodes the stored pixel at (x, y) into 8-bit-per-channel RGB,
// independent of storage mode.
func pixelRGB(mode PixelMode, pixels []byte, width, x, y int) (r, g, b byte) {
	switch mode {
	case RGB565:
		idx := (y*width + x) * 2
		v := uint16(pixels[idx]) | uint16(pixels[idx+1])<<8
		r = byte((v>>11)&0x1F) << 3
		g = byte((v>>5)&0x3F) << 2
		b = byte(v&0x1F) << 3
	case RGB888, Gray8:
		idx := (y*width + x) * 3
		r, g, b = pixels[idx], pixels[idx+1], pixels[idx+2]
	}
	return
}
