// Package framebuffer implements the shared pixel-buffer surface of
// spec.md §4.8: a name, dimensions, a pixel-mode-parameterized buffer, and
// at most one optional touch position, presented or persisted by one of
// two backends.
package framebuffer

import "sync"

// PixelMode parameterizes a Framebuffer's storage and the width of a
// device-side pixel write.
type PixelMode int

const (
	RGB565 PixelMode = iota
	RGB888
	// Gray8 is carried over from original_source/ext_devices/lcd.rs (see
	// SPEC_FULL.md §9): an LCD feeds 4-bit gray samples that are
	// nibble-replicated into an RGB888-backed store.
	Gray8
)

// BytesPerPixel returns the backing-store width for the mode. Gray8 stores
// expanded to full RGB888 triples, matching the original's LCD behavior.
func (m PixelMode) BytesPerPixel() int {
	switch m {
	case RGB565:
		return 2
	case RGB888, Gray8:
		return 3
	default:
		return 0
	}
}

// Backend is implemented by the two presentation surfaces a Framebuffer
// may be bound to (spec.md §4.8: at most one per framebuffer).
type Backend interface {
	// NotifyDirty is called after any pixel write so the backend can track
	// need_redraw without scanning the buffer.
	NotifyDirty()
	// Close releases any backend resources (window, open file) at shutdown.
	Close() error
}

// Point is a framebuffer-pixel-space coordinate.
type Point struct {
	X, Y int
}

// Framebuffer is the shared surface of spec.md §3/§4.8.
type Framebuffer struct {
	Name   string
	Width  int
	Height int
	Mode   PixelMode

	mu     sync.Mutex
	pixels []byte // Width*Height*Mode.BytesPerPixel(), row-major

	touch    *Point
	backend  Backend
}

// New allocates a zeroed framebuffer of the given dimensions and mode.
func New(name string, width, height int, mode PixelMode) *Framebuffer {
	return &Framebuffer{
		Name:   name,
		Width:  width,
		Height: height,
		Mode:   mode,
		pixels: make([]byte, width*height*mode.BytesPerPixel()),
	}
}

// SetBackend attaches the single presentation/image backend for this
// framebuffer. Per spec.md §4.8 invariants, callers must not attach more
// than one.
func (f *Framebuffer) SetBackend(b Backend) { f.backend = b }

func (f *Framebuffer) clampCoord(x, y int) (int, int) {
	if x < 0 {
		x = 0
	} else if x >= f.Width {
		x = f.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.Height {
		y = f.Height - 1
	}
	return x, y
}

// SetPixelRGB565 writes a 16-bit pixel at (x, y), clamped into bounds per
// spec.md §4.3's Display drawing rule and §8's framebuffer-bounds property.
func (f *Framebuffer) SetPixelRGB565(x, y int, value uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()

	x, y = f.clampCoord(x, y)
	idx := (y*f.Width + x) * 2
	f.pixels[idx] = byte(value)
	f.pixels[idx+1] = byte(value >> 8)

	if f.backend != nil {
		f.backend.NotifyDirty()
	}
}

// SetPixelRGB888 writes an 8-bit-per-channel pixel at (x, y), clamped into
// bounds. Used directly by RGB888 surfaces and by Gray8-mode surfaces after
// nibble expansion (the LCD device does the expansion; this store is
// format-agnostic past BytesPerPixel()).
func (f *Framebuffer) SetPixelRGB888(x, y int, r, g, b byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	x, y = f.clampCoord(x, y)
	idx := (y*f.Width + x) * 3
	f.pixels[idx] = r
	f.pixels[idx+1] = g
	f.pixels[idx+2] = b

	if f.backend != nil {
		f.backend.NotifyDirty()
	}
}

// Pixels returns a copy of the raw pixel buffer for backend consumption
// (image export, presentation blit).
func (f *Framebuffer) Pixels() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.pixels))
	copy(out, f.pixels)
	return out
}

// PixelRGB565At reads back a pixel from an RGB565-mode surface (used by the
// display tests).
func (f *Framebuffer) PixelRGB565At(x, y int) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := (y*f.Width + x) * 2
	return uint16(f.pixels[idx]) | uint16(f.pixels[idx+1])<<8
}

// SetTouchPosition records the current touch contact, in framebuffer pixel
// coordinates (spec.md §3's invariant). Pass nil to indicate no contact.
func (f *Framebuffer) SetTouchPosition(p *Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch = p
}

// TouchPosition returns the current touch contact, or nil if none.
func (f *Framebuffer) TouchPosition() *Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touch
}

// Close releases the attached backend, if any.
func (f *Framebuffer) Close() error {
	if f.backend != nil {
		return f.backend.Close()
	}
	return nil
}
