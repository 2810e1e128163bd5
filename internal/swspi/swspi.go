// Package swspi implements the Software SPI of spec.md §4.5: a
// bit-banged full-duplex SPI transaction synthesized purely from GPIO pin
// edges, for firmware that drives SPI without the SPI peripheral.
// Grounded on internal/peripherals.GPIO's changed-field write-callback
// mechanism (itself from machine's CIA-port edge-callback pattern), which
// is exactly the natural attachment point spec.md §4.5's Rationale names.
package swspi

import "github.com/stm32emu/stm32emu/internal/peripherals"

// Device is the byte-stream peer a software-SPI transaction drives,
// matching internal/peripherals.ByteStreamDevice.
type Device interface {
	Read() byte
	Write(b byte)
}

// SoftSPI holds the bit-banged transaction state of spec.md §4.5.
type SoftSPI struct {
	device Device

	dataMOSI byte
	dataMISO byte
	bitIndex int

	cs, clk, mosi bool
	miso          bool // latched MISO output level
}

// New constructs a SoftSPI bound to device, not yet wired to any GPIO
// pins; call Bind to attach the cs/clk/miso/mosi pins.
func New(device Device) *SoftSPI {
	return &SoftSPI{device: device}
}

// Bind registers write-callbacks on clk, mosi and (if non-nil) cs, and
// a read-callback on miso, wiring the transaction state machine to the
// given pins per spec.md §4.5. cs may be nil ("cs?" is optional in the
// configuration); when nil, CS is treated as permanently low.
func (s *SoftSPI) Bind(cs, clk, miso, mosi *peripherals.Pin) {
	if cs != nil {
		cs.Write = append(cs.Write, s.onCS)
	} else {
		s.cs = false
	}
	clk.Write = append(clk.Write, s.onCLK)
	mosi.Write = append(mosi.Write, s.onMOSI)
	miso.Read = s.readMISO
}

// onCS implements spec.md §4.5's CS-edge handling: falling edge resets the
// bit counter and the partially shifted-in MOSI byte. The device reply
// latched after the previous byte is kept, so it shifts out on MISO over
// the next 8 clocks.
func (s *SoftSPI) onCS(level bool) {
	wasHigh := s.cs
	s.cs = level
	if wasHigh && !level {
		s.bitIndex = 0
		s.dataMOSI = 0
	}
}

func (s *SoftSPI) onMOSI(level bool) { s.mosi = level }

// onCLK implements spec.md §4.5's CLK rising-edge bit-shift and byte
// dispatch.
func (s *SoftSPI) onCLK(level bool) {
	rising := level && !s.clk
	s.clk = level
	if s.cs || !rising {
		return
	}

	s.miso = s.dataMISO&0x80 != 0
	s.dataMISO <<= 1

	s.dataMOSI <<= 1
	if s.mosi {
		s.dataMOSI |= 1
	}
	s.bitIndex++

	if s.bitIndex == 8 {
		s.bitIndex = 0
		if s.device != nil {
			s.device.Write(s.dataMOSI)
			s.dataMISO = s.device.Read()
		}
	}
}

// readMISO implements spec.md §4.5's MISO read-callback: the latched
// level when CS is low, else false.
func (s *SoftSPI) readMISO() bool {
	if s.cs {
		return false
	}
	return s.miso
}
