package peripherals

// NVIC is the narrow view of the interrupt controller SysTick and SCB need:
// marking pending exceptions and arming/disarming the periodic SysTick
// trigger (spec.md §4.3, §4.7). internal/irq.Controller implements it.
type NVIC interface {
	SetPending(irq int)
	SetSysTickPeriod(period uint32)
}

const (
	stkCTRL = 0x00
	stkLOAD = 0x04
	stkVAL  = 0x08
)

// SysTick models the Cortex-M SysTick timer. It never actually counts down;
// instead it synthesizes the appearance of counting per spec.md §4.3, and
// arms the interrupt controller's periodic SysTick trigger whenever CTRL
// or LOAD is written with both ENABLE and TICKINT set.
type SysTick struct {
	nvic NVIC

	ctl        uint32
	reload     uint32
	ctrlToggle bool
	valToggle  bool
}

// NewSysTick constructs a SysTick model bound to nvic.
func NewSysTick(nvic NVIC) *SysTick {
	return &SysTick{nvic: nvic}
}

func (s *SysTick) Read(offset uint32) uint32 {
	switch offset {
	case stkCTRL:
		v := s.ctl
		s.ctrlToggle = !s.ctrlToggle
		if s.ctrlToggle {
			v ^= 1 << 16
		}
		return v
	case stkLOAD:
		return s.reload
	case stkVAL:
		s.valToggle = !s.valToggle
		if s.valToggle {
			return s.reload / 2
		}
		return 0
	default:
		return 0
	}
}

func (s *SysTick) Write(offset uint32, value uint32) {
	switch offset {
	case stkCTRL:
		s.ctl = value
		s.syncPeriod()
	case stkLOAD:
		s.reload = value
		s.syncPeriod()
	case stkVAL:
		// writes clear VAL/COUNTFLAG on real hardware; nothing to do here
		// since VAL is already synthesized rather than counted.
	}
}

// syncPeriod arms or disarms the controller's periodic SysTick trigger
// based on CTRL's ENABLE (bit 0) and TICKINT (bit 1) bits, per spec.md
// §4.3: "set NVIC systick_period = reload if (ctl & 0b11) == 0b11 ...
// else clear it."
func (s *SysTick) syncPeriod() {
	if s.ctl&0b11 == 0b11 {
		s.nvic.SetSysTickPeriod(s.reload)
	} else {
		s.nvic.SetSysTickPeriod(0)
	}
}
