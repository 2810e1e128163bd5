package peripherals

const (
	scbICSR        = 0x04
	icsrPendSVBit  = 28
	icsrSysTickBit = 26
)

// IRQ indices for the exceptions SCB can pend directly, per spec.md §4.7.
const (
	IRQPendSV  = -2
	IRQSysTick = -1
)

// SCB models the System Control Block register writes the fabric cares
// about: ICSR's PENDSVSET and PENDSTSET bits, which forward straight into
// the interrupt controller's pending set.
type SCB struct {
	nvic NVIC
}

// NewSCB constructs an SCB model bound to nvic.
func NewSCB(nvic NVIC) *SCB { return &SCB{nvic: nvic} }

func (s *SCB) Read(offset uint32) uint32 { return 0 }

func (s *SCB) Write(offset uint32, value uint32) {
	if offset != scbICSR {
		return
	}
	if value&(1<<icsrSysTickBit) != 0 {
		s.nvic.SetPending(IRQSysTick)
	}
	if value&(1<<icsrPendSVBit) != 0 {
		s.nvic.SetPending(IRQPendSV)
	}
}
