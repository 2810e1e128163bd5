package devices

import "github.com/stm32emu/stm32emu/internal/framebuffer"

// displayMode is the Cmd/Data decode of spec.md §4.4.
type displayMode int

const (
	displayCmd displayMode = iota
	displayData
)

const (
	cmdSetHoriRegion = 0x2A
	cmdSetVertRegion = 0x2B
	cmdDraw          = 0x2C
)

// region is the draw_region rectangle used by the Draw command.
type region struct {
	left, right, top, bottom uint16
}

// DisplayConfig is the {peripheral, cmd_addr_bit, swap_bytes?, replies?,
// framebuffer} configuration of spec.md §4.4.
type DisplayConfig struct {
	Peripheral string
	CmdAddrBit uint32
	SwapBytes  bool
	// Replies maps a command byte to the fixed reply byte queue returned
	// by subsequent data reads, per spec.md §4.4's "used when a configured
	// reply exists for a given command byte."
	Replies map[byte][]byte
}

// Display implements MemMappedDevice, modeling an FSMC-attached 16-bit
// MCU-interface display (ST7735/ILI9341-style) per spec.md §4.4.
type Display struct {
	cfg DisplayConfig
	fb  *framebuffer.Framebuffer

	cmd      byte
	haveCmd  bool
	args     []byte
	drawing  bool
	region   region
	cursorX  int
	cursorY  int
	reply    []byte
}

// NewDisplay constructs a Display bound to fb.
func NewDisplay(cfg DisplayConfig, fb *framebuffer.Framebuffer) *Display {
	return &Display{cfg: cfg, fb: fb}
}

// ConnectPeripheral implements spec.md §4.4's bind-time hook.
func (d *Display) ConnectPeripheral(name string) string { return "display:" + name }

func (d *Display) mode(offset uint32) displayMode {
	if offset&d.cfg.CmdAddrBit != 0 {
		return displayData
	}
	return displayCmd
}

func (d *Display) finishCmd() {
	d.haveCmd = false
	d.args = d.args[:0]
	d.drawing = false
}

// Write implements MemMappedDevice.
func (d *Display) Write(offset uint32, value uint32) {
	switch d.mode(offset) {
	case displayCmd:
		d.finishCmd() // drop any previous incomplete command
		d.cmd = byte(value)
		d.haveCmd = true
		if replies, ok := d.cfg.Replies[d.cmd]; ok {
			d.reply = append([]byte(nil), replies...)
		}
		d.applyCommand() // zero-argument commands (Draw) fire immediately
	case displayData:
		if d.drawing {
			d.drawPixel(uint16(value))
			return
		}
		d.args = append(d.args, byte(value>>8), byte(value))
		d.applyCommand()
	}
}

// applyCommand interprets the accumulated argument bytes against the
// in-progress command, per spec.md §4.4.
func (d *Display) applyCommand() {
	if !d.haveCmd {
		return
	}
	switch d.cmd {
	case cmdSetHoriRegion:
		if len(d.args) >= 4 {
			d.region.left = be16(d.args[0], d.args[1])
			d.region.right = be16(d.args[2], d.args[3])
			d.haveCmd = false
		}
	case cmdSetVertRegion:
		if len(d.args) >= 4 {
			d.region.top = be16(d.args[0], d.args[1])
			d.region.bottom = be16(d.args[2], d.args[3])
			d.haveCmd = false
		}
	case cmdDraw:
		d.drawing = true
		d.cursorX = int(d.region.left)
		d.cursorY = int(d.region.top)
		d.haveCmd = false
	}
}

func be16(hi, lo byte) uint16 { return uint16(hi)<<8 | uint16(lo) }

// drawPixel deposits one pixel at the current cursor and advances it,
// wrapping row then region, per spec.md §4.4's Drawing rule.
func (d *Display) drawPixel(value uint16) {
	if d.cfg.SwapBytes {
		value = value>>8 | value<<8
	}

	x, y := d.cursorX, d.cursorY
	if x > d.fb.Width-1 {
		x = d.fb.Width - 1
	}
	if y > d.fb.Height-1 {
		y = d.fb.Height - 1
	}
	d.fb.SetPixelRGB565(x, y, value)

	d.cursorX++
	if d.cursorX > int(d.region.right) {
		d.cursorX = int(d.region.left)
		d.cursorY++
		if d.cursorY > int(d.region.bottom) {
			d.cursorY = int(d.region.top)
		}
	}
}

// Read implements MemMappedDevice, popping the reply queue for the
// current command byte.
func (d *Display) Read(offset uint32) uint32 {
	if d.mode(offset) != displayData || len(d.reply) == 0 {
		return 0
	}
	b := d.reply[0]
	d.reply = d.reply[1:]
	return uint32(b)
}
