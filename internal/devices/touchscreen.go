package devices

import (
	"github.com/stm32emu/stm32emu/internal/framebuffer"
	"github.com/stm32emu/stm32emu/internal/peripherals"
)

// ADS7846 measurement channel selectors, per spec.md §4.4.
const (
	measureX  = 0b101
	measureY  = 0b001
	measureZ1 = 0b011
	measureZ2 = 0b100
)

const touchStartBit = 0x80

// TouchscreenConfig is the {peripheral, framebuffer, flip_x?, flip_y?,
// swap_x_y?, touch_detected_pin?, scale_down?} configuration of spec.md
// §4.4.
type TouchscreenConfig struct {
	Peripheral       string
	FlipX            bool
	FlipY            bool
	SwapXY           bool
	TouchDetectedPin string // e.g. "PA12"; empty if unused
	ScaleDown        uint32 // 0/1 means no scaling
}

// Touchscreen implements ByteStreamDevice, modeling an ADS7846-family
// resistive touch controller sampling a framebuffer's current touch
// contact, per spec.md §4.4.
type Touchscreen struct {
	cfg TouchscreenConfig
	fb  *framebuffer.Framebuffer

	reply []byte
}

// NewTouchscreen constructs a Touchscreen bound to fb. If cfg has a
// TouchDetectedPin, the caller is expected to also call BindDetectPin with
// the resolved GPIO pin once the GPIO set is available (spec.md §4.4's "at
// construction, if touch_detected_pin is set, register a GPIO
// read-callback").
func NewTouchscreen(cfg TouchscreenConfig, fb *framebuffer.Framebuffer) *Touchscreen {
	return &Touchscreen{cfg: cfg, fb: fb}
}

// ConnectPeripheral implements spec.md §4.4's bind-time hook.
func (t *Touchscreen) ConnectPeripheral(name string) string { return "touchscreen:" + name }

// BindDetectPin registers a GPIO read-callback on pin that returns true
// when no touch is present (open-drain/active-low), per spec.md §4.4.
func (t *Touchscreen) BindDetectPin(pin *peripherals.Pin) {
	if pin == nil {
		return
	}
	pin.Read = func() bool {
		return t.fb.TouchPosition() == nil
	}
}

// Write implements ByteStreamDevice: a start-bit command byte selects a
// measurement channel and samples the framebuffer's touch position,
// producing a 2-byte MSB-first reply, per spec.md §4.4.
func (t *Touchscreen) Write(b byte) {
	if b&touchStartBit == 0 {
		return
	}
	op := (b >> 4) & 0b111

	if t.cfg.SwapXY {
		if op == measureX {
			op = measureY
		} else if op == measureY {
			op = measureX
		}
	}

	var v uint32
	switch op {
	case measureX:
		v = t.sampleX()
	case measureY:
		v = t.sampleY()
	case measureZ1, measureZ2:
		v = 10
	default:
		return
	}

	t.reply = []byte{byte((v >> 4) & 0xFF), byte((v << 4) & 0xFF)}
}

func (t *Touchscreen) sampleX() uint32 {
	pos := t.fb.TouchPosition()
	if pos == nil {
		return 0
	}
	v := uint32(pos.X) * 0xFFF / uint32(t.fb.Width)
	if t.cfg.FlipX {
		v = 0xFFF - v
	}
	return t.scale(v)
}

func (t *Touchscreen) sampleY() uint32 {
	pos := t.fb.TouchPosition()
	if pos == nil {
		return 0
	}
	v := uint32(pos.Y) * 0xFFF / uint32(t.fb.Height)
	if t.cfg.FlipY {
		v = 0xFFF - v
	}
	return t.scale(v)
}

func (t *Touchscreen) scale(v uint32) uint32 {
	if t.cfg.ScaleDown > 1 {
		return v / t.cfg.ScaleDown
	}
	return v
}

// Read implements ByteStreamDevice, popping the next reply byte.
func (t *Touchscreen) Read() byte {
	if len(t.reply) == 0 {
		return 0
	}
	b := t.reply[0]
	t.reply = t.reply[1:]
	return b
}
