package devices

import "github.com/stm32emu/stm32emu/internal/framebuffer"

const lcdCmdStartDrawing = 0xFB

// LCDConfig is the {peripheral, framebuffer} configuration of spec.md
// §4.4.
type LCDConfig struct {
	Peripheral string
}

// LCD implements ByteStreamDevice, modeling a serial 8-bit gray LCD that
// feeds a Gray8 framebuffer two nibbles per byte, per spec.md §4.4.
type LCD struct {
	cfg LCDConfig
	fb  *framebuffer.Framebuffer

	drawing bool
	x, y    int
}

// NewLCD constructs an LCD bound to fb.
func NewLCD(cfg LCDConfig, fb *framebuffer.Framebuffer) *LCD {
	return &LCD{cfg: cfg, fb: fb}
}

// ConnectPeripheral implements spec.md §4.4's bind-time hook.
func (l *LCD) ConnectPeripheral(name string) string { return "lcd:" + name }

func expandNibble(n byte) byte {
	n &= 0x0F
	return n<<4 | n
}

func (l *LCD) advance() {
	l.x++
	if l.x >= l.fb.Width {
		l.x = 0
		l.y++
		if l.y >= l.fb.Height {
			l.y = 0
		}
	}
}

// Write implements ByteStreamDevice.
func (l *LCD) Write(b byte) {
	if !l.drawing {
		switch b {
		case 0x00, 0xFF:
			return
		case lcdCmdStartDrawing:
			l.drawing = true
			l.x, l.y = 0, 0
			return
		default:
			return
		}
	}

	hi := expandNibble(b >> 4)
	lo := expandNibble(b)
	l.fb.SetPixelRGB888(l.x, l.y, hi, hi, hi)
	l.advance()
	l.fb.SetPixelRGB888(l.x, l.y, lo, lo, lo)
	l.advance()
}

// Read implements ByteStreamDevice; the LCD is write-only in the source
// so reads always return 0.
func (l *LCD) Read() byte { return 0 }
