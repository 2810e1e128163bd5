package peripherals

// NumDMAStreams is the fixed stream count per DMA controller, per spec.md
// §3/§4.3 ("8 stream slots per controller").
const NumDMAStreams = 8

const (
	dmaStreamBase   = 0x10 // four 4-byte interrupt-status/clear registers precede the streams
	dmaStreamStride = 0x18

	dmaOffCR   = 0x00
	dmaOffNDTR = 0x04
	dmaOffPAR  = 0x08
	dmaOffM0AR = 0x0C
	dmaOffM1AR = 0x10
	dmaOffFCR  = 0x14
)

// CR bit positions decoded per spec.md §4.3.
const (
	drCREnable     = 0
	drCRDirShift   = 6
	drCRDirMask    = 0x3
	drCRPSizeShift = 11
	drCRMSizeMask  = 0x3 // word-size field bits 12..11
	drCRMemTarget  = 19
	drCRChanShift  = 25
	drCRChanMask   = 0x7
)

// Direction is the decoded DMA transfer direction (spec.md §4.3).
type Direction int

const (
	DirPeripheralToMemory Direction = iota
	DirMemoryToPeripheral
	DirMemoryToMemory
	DirInvalid
)

// Memory is the CPU-host memory surface the DMA engine reads/writes for
// the memory half of a transfer (spec.md §4.6).
type Memory interface {
	MemRead(addr uint64, size int) ([]byte, error)
	MemWrite(addr uint64, data []byte) error
}

// PeripheralResolver locates the peripheral slot covering an address, so
// the DMA engine can find the peripheral half of a transfer by PAR alone
// (spec.md §4.6 step 1: "resolve peri = peripheral_containing(PAR)").
// internal/registry.Registry implements this.
type PeripheralResolver interface {
	PeripheralAt(addr uint32) (p Peripheral, base uint32, ok bool)
}

// Logger is the minimal logging surface DMA needs for the warn-and-recover
// failure path of spec.md §4.6 step 3.
type Logger interface {
	Warnf(format string, args ...any)
}

// dmaStream is one of the 8 per-controller transfer-control slots.
type dmaStream struct {
	cr       uint32
	crNext   uint32
	crStaged bool
	ndtr     uint32
	par      uint32
	m0ar     uint32
	m1ar     uint32
	fcr      uint32

	lastZeroLen    bool
	zeroLenToggled bool
}

// DMA models one DMA controller's 8 streams. Transfers are performed
// synchronously inside the triggering CR write, per spec.md §4.3/§4.6.
type DMA struct {
	streams [NumDMAStreams]dmaStream
	mem     Memory
	peri    PeripheralResolver
	log     Logger
}

// NewDMA constructs a DMA controller bound to the CPU-host memory surface
// and the peripheral registry used to resolve PAR.
func NewDMA(mem Memory, peri PeripheralResolver, log Logger) *DMA {
	return &DMA{mem: mem, peri: peri, log: log}
}

func (d *DMA) streamAndOffset(offset uint32) (*dmaStream, uint32, bool) {
	if offset < dmaStreamBase {
		return nil, 0, false
	}
	rel := offset - dmaStreamBase
	idx := rel / dmaStreamStride
	if idx >= NumDMAStreams {
		return nil, 0, false
	}
	return &d.streams[idx], rel % dmaStreamStride, true
}

func (d *DMA) Read(offset uint32) uint32 {
	s, regOff, ok := d.streamAndOffset(offset)
	if !ok {
		return 0
	}
	switch regOff {
	case dmaOffCR:
		v := s.cr
		if s.crStaged {
			v = s.crNext
			s.crStaged = false
		}
		if s.lastZeroLen {
			// Firmware busy-wait workaround (spec.md §4.6 step 4 / §9):
			// toggle the enable bit on successive reads when the last
			// triggered transfer was a zero-length memory-to-peripheral
			// transfer, so a tight poll on
			// CR.EN eventually observes the bit clear.
			s.zeroLenToggled = !s.zeroLenToggled
			if s.zeroLenToggled {
				v ^= 1 << drCREnable
			}
		}
		return v
	case dmaOffNDTR:
		return s.ndtr
	case dmaOffPAR:
		return s.par
	case dmaOffM0AR:
		return s.m0ar
	case dmaOffM1AR:
		return s.m1ar
	case dmaOffFCR:
		return s.fcr
	default:
		return 0
	}
}

func (d *DMA) Write(offset uint32, value uint32) {
	s, regOff, ok := d.streamAndOffset(offset)
	if !ok {
		return
	}
	switch regOff {
	case dmaOffCR:
		s.cr = value
		if value&(1<<drCREnable) != 0 {
			d.trigger(s)
		}
	case dmaOffNDTR:
		s.ndtr = value
	case dmaOffPAR:
		s.par = value
	case dmaOffM0AR:
		s.m0ar = value
	case dmaOffM1AR:
		s.m1ar = value
	case dmaOffFCR:
		s.fcr = value
	}
}

func decodeDirection(cr uint32) Direction {
	switch (cr >> drCRDirShift) & drCRDirMask {
	case 0:
		return DirPeripheralToMemory
	case 1:
		return DirMemoryToPeripheral
	case 2:
		return DirMemoryToMemory
	default:
		return DirInvalid
	}
}

func decodeWordSize(cr uint32) int {
	switch (cr >> drCRPSizeShift) & drCRMSizeMask {
	case 0:
		return 1
	case 1:
		return 2
	default:
		return 4
	}
}

// trigger performs the whole transfer synchronously, per spec.md §4.3/§4.6.
func (d *DMA) trigger(s *dmaStream) {
	dir := decodeDirection(s.cr)
	wordSize := decodeWordSize(s.cr)
	size := wordSize * int(s.ndtr)

	memAddr := uint64(s.m0ar)
	if s.cr&(1<<drCRMemTarget) != 0 {
		memAddr = uint64(s.m1ar)
	}

	peri, base, found := d.peri.PeripheralAt(s.par)

	switch dir {
	case DirPeripheralToMemory:
		var buf []byte
		if found {
			buf = readPeripheralDMA(peri, s.par-base, size)
		} else {
			buf = make([]byte, size)
		}
		if err := d.mem.MemWrite(memAddr, buf); err != nil {
			d.log.Warnf("dma: mem write 0x%x failed: %v", memAddr, err)
		}
	case DirMemoryToPeripheral:
		buf, err := d.mem.MemRead(memAddr, size)
		if err != nil {
			d.log.Warnf("dma: mem read 0x%x failed: %v", memAddr, err)
			buf = make([]byte, size)
		}
		if found {
			writePeripheralDMA(peri, s.par-base, buf)
		}
	case DirMemoryToMemory:
		buf, err := d.mem.MemRead(uint64(s.par), size)
		if err != nil {
			d.log.Warnf("dma: mem read 0x%x failed: %v", s.par, err)
			buf = make([]byte, size)
		}
		if err := d.mem.MemWrite(memAddr, buf); err != nil {
			d.log.Warnf("dma: mem write 0x%x failed: %v", memAddr, err)
		}
	}

	s.cr &^= 1 << drCREnable
	s.ndtr = 0
	s.crNext = s.cr
	s.crStaged = true
	s.lastZeroLen = size == 0 && dir == DirMemoryToPeripheral
	s.zeroLenToggled = false
}

func readPeripheralDMA(p Peripheral, offset uint32, size int) []byte {
	if dc, ok := p.(DMACapable); ok {
		return dc.ReadDMA(offset, size)
	}
	return ReadDMADefault(p, offset, size)
}

func writePeripheralDMA(p Peripheral, offset uint32, data []byte) {
	if dc, ok := p.(DMACapable); ok {
		dc.WriteDMA(offset, data)
		return
	}
	WriteDMADefault(p, offset, data)
}
