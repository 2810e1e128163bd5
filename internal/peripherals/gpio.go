package peripherals

// NumGPIOPorts and PinsPerPort are the fixed dimensions of spec.md §3's
// GPIO state: 11 ports (A..K) x 16 pins.
const (
	NumGPIOPorts = 11
	PinsPerPort  = 16
)

const (
	gpioMODER   = 0x00
	gpioOTYPER  = 0x04
	gpioOSPEEDR = 0x08
	gpioPUPDR   = 0x0C
	gpioIDR     = 0x10
	gpioODR     = 0x14
	gpioBSRR    = 0x18
	gpioLCKR    = 0x1C
	gpioAFRL    = 0x20
	gpioAFRH    = 0x24
)

// ReadCallback returns the current external level of a pin, used to
// synthesize IDR reads (spec.md §4.3).
type ReadCallback func() bool

// WriteCallback is invoked whenever a pin's output level changes, in
// registration order (spec.md §3: "zero or more write-callbacks").
type WriteCallback func(level bool)

// Pin holds the per-pin callback registrations of spec.md §3.
type Pin struct {
	Read  ReadCallback
	Write []WriteCallback
}

// Port is one of the 11 GPIO ports, owning all per-pin state plus the
// register shadow spec.md §4.3 lists (MODE, OTYPE, OSPEED, PUPD, ODR,
// LCKR, AFRL, AFRH — IDR and BSRR are synthesized/write-only and so carry
// no persistent shadow of their own).
type Port struct {
	pins [PinsPerPort]Pin

	moder   uint32
	otyper  uint32
	ospeedr uint32
	pupdr   uint32
	odr     uint32
	lckr    uint32
	afrl    uint32
	afrh    uint32
}

// GPIO is the full 11-port GPIO peripheral set. Each Port is addressed by
// the registry under its own peripheral name (e.g. "GPIOA"), but all ports
// share this one struct so software SPI and touch-detect wiring (which
// address pins by "PA12"-style name) can resolve a pin anywhere.
type GPIO struct {
	Ports [NumGPIOPorts]*Port
}

// NewGPIO constructs all 11 ports, zeroed.
func NewGPIO() *GPIO {
	g := &GPIO{}
	for i := range g.Ports {
		g.Ports[i] = &Port{}
	}
	return g
}

// PortIndex maps a port letter ('A'..'K') to its 0-based index, per
// spec.md §4.3 ("A=0..K=10").
func PortIndex(letter byte) (int, bool) {
	if letter < 'A' || letter > 'K' {
		return 0, false
	}
	return int(letter - 'A'), true
}

// Port returns the Port model for letter, or nil if out of range.
func (g *GPIO) Port(letter byte) *Port {
	idx, ok := PortIndex(letter)
	if !ok {
		return nil
	}
	return g.Ports[idx]
}

// Pin returns a pointer to a port's per-pin callback state, for binding by
// software SPI / touchscreen / any other consumer addressing pins by name.
func (p *Port) Pin(n int) *Pin { return &p.pins[n] }

// field2 reads a 2-bit-per-pin field.
func field2(reg uint32, pin int) uint32 { return (reg >> (pin * 2)) & 0x3 }

// Read implements spec.md §4.3's GPIO register reads. IDR synthesizes pin
// values from read-callbacks; everything else returns its shadow.
func (p *Port) Read(offset uint32) uint32 {
	switch offset {
	case gpioMODER:
		return p.moder
	case gpioOTYPER:
		return p.otyper
	case gpioOSPEEDR:
		return p.ospeedr
	case gpioPUPDR:
		return p.pupdr
	case gpioIDR:
		var idr uint32
		for i := 0; i < PinsPerPort; i++ {
			if p.pins[i].Read != nil && p.pins[i].Read() {
				idr |= 1 << i
			}
		}
		return idr
	case gpioODR:
		return p.odr
	case gpioLCKR:
		return p.lckr
	case gpioAFRL:
		return p.afrl
	case gpioAFRH:
		return p.afrh
	default:
		return 0
	}
}

// Write implements spec.md §4.3's GPIO register writes, firing
// write-callbacks for every pin whose output level changed. BSRR is
// write-only and decoded into the equivalent ODR update before the same
// change-detection fan-out runs, so software SPI and touch-detect see BSRR
// set/reset exactly as they would see a plain ODR write.
func (p *Port) Write(offset uint32, value uint32) {
	switch offset {
	case gpioMODER:
		p.moder = value
	case gpioOTYPER:
		p.otyper = value
	case gpioOSPEEDR:
		p.ospeedr = value
	case gpioPUPDR:
		p.pupdr = value
	case gpioODR:
		p.writeODR(value)
	case gpioBSRR:
		set := value & 0xFFFF
		reset := (value >> 16) & 0xFFFF
		newODR := (p.odr | set) &^ reset
		p.writeODR(newODR)
	case gpioLCKR:
		p.lckr = value
	case gpioAFRL:
		p.afrl = value
	case gpioAFRH:
		p.afrh = value
	}
}

// writeODR detects changed bits via XOR scan (spec.md §4.3) and invokes
// every registered write-callback for each changed pin, in registration
// order, with the pin's new boolean level.
func (p *Port) writeODR(newODR uint32) {
	changed := p.odr ^ newODR
	p.odr = newODR
	if changed == 0 {
		return
	}
	for i := 0; i < PinsPerPort; i++ {
		if changed&(1<<i) == 0 {
			continue
		}
		level := newODR&(1<<i) != 0
		for _, cb := range p.pins[i].Write {
			cb(level)
		}
	}
}
