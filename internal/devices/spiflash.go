// Package devices implements the External Device Framework of spec.md
// §4.4: SPI flash, the FSMC-attached display, the serial LCD, a USART
// line probe, and an ADS7846-style touchscreen, realized as the two
// polymorphic shapes internal/peripherals declares (ByteStreamDevice and
// MemMappedDevice). Grounded on the teacher's external-peripheral byte
// devices (e.g. joystick_port.go / cia_chips.go's command-byte state
// machines), generalized from fixed home-computer peripherals to the
// spec's configurable device set.
package devices

import (
	"github.com/stm32emu/stm32emu/internal/tracelog"
)

// SPIFlashConfig is the {peripheral, jedec_id, file, size} configuration of
// spec.md §4.4.
type SPIFlashConfig struct {
	Peripheral string
	JEDECID    uint32
	Size       uint32
}

const (
	flashCmdReadJEDECID = 0x9F
	flashCmdReadDeviceID = 0x90
	flashCmdReadData     = 0x03

	flashDeviceID = 0xAABBCC
)

// SPIFlash implements ByteStreamDevice, modeling a SPI NOR flash's command
// set per spec.md §4.4.
type SPIFlash struct {
	log  *tracelog.Logger
	cfg  SPIFlashConfig
	data []byte

	cmd     int // -1 when idle
	argsLen int
	args    []byte

	reply      []byte
	streaming  bool
	readCursor uint32
}

// NewSPIFlash constructs a SPI flash device. content is the file bytes
// loaded at configuration time (possibly nil); they are padded with zero
// or truncated to cfg.Size, per spec.md §4.4's "padded/truncated to size."
func NewSPIFlash(log *tracelog.Logger, cfg SPIFlashConfig, content []byte) *SPIFlash {
	data := make([]byte, cfg.Size)
	copy(data, content)
	return &SPIFlash{log: log, cfg: cfg, data: data, cmd: -1}
}

// ConnectPeripheral implements spec.md §4.4's bind-time hook.
func (f *SPIFlash) ConnectPeripheral(name string) string { return "spiflash:" + name }

func (f *SPIFlash) finishCmd() {
	f.cmd = -1
	f.args = f.args[:0]
	f.argsLen = 0
}

// Write implements ByteStreamDevice, accumulating a command and its
// argument bytes per spec.md §4.4.
func (f *SPIFlash) Write(b byte) {
	if f.cmd == -1 {
		switch b {
		case 0x00, 0xFF:
			return // idle fill
		case flashCmdReadJEDECID:
			f.streaming = false
			f.reply = []byte{byte(f.cfg.JEDECID >> 24), byte(f.cfg.JEDECID >> 16), byte(f.cfg.JEDECID >> 8), byte(f.cfg.JEDECID)}
			f.finishCmd()
			return
		case flashCmdReadDeviceID:
			f.streaming = false
			f.reply = []byte{byte(flashDeviceID >> 16), byte(flashDeviceID >> 8), byte(flashDeviceID)}
			f.finishCmd()
			return
		case flashCmdReadData:
			f.cmd = flashCmdReadData
			f.argsLen = 3
			f.args = f.args[:0]
			return
		default:
			f.log.Warnf("spiflash: unknown command byte 0x%02x", b)
			return
		}
	}

	f.args = append(f.args, b)
	if len(f.args) < f.argsLen {
		return
	}

	switch f.cmd {
	case flashCmdReadData:
		addr := uint32(f.args[0])<<16 | uint32(f.args[1])<<8 | uint32(f.args[2])
		if addr >= f.cfg.Size {
			f.log.Warnf("spiflash: read address 0x%06x out of range (size %d), wrapping", addr, f.cfg.Size)
			if f.cfg.Size != 0 {
				addr %= f.cfg.Size
			} else {
				addr = 0
			}
		}
		f.startFileContent(addr)
	}
	f.finishCmd()
}

// startFileContent arms a streaming read starting at addr that wraps
// modulo size, per spec.md §4.4. Rather than materialize the whole
// wrap-around stream up front, Read() advances a cursor lazily.
func (f *SPIFlash) startFileContent(addr uint32) {
	f.reply = nil
	f.readCursor = addr
	f.streaming = true
}

// Read implements ByteStreamDevice, popping from the reply queue or the
// streaming file-content cursor, per spec.md §4.4.
func (f *SPIFlash) Read() byte {
	if len(f.reply) > 0 {
		b := f.reply[0]
		f.reply = f.reply[1:]
		return b
	}
	if f.streaming && len(f.data) > 0 {
		b := f.data[f.readCursor]
		f.readCursor = (f.readCursor + 1) % uint32(len(f.data))
		return b
	}
	return 0
}

// readCursor and streaming hold the FileContent stream state; kept
// separate from reply since they model an unbounded cursor rather than a
// fixed queue.
