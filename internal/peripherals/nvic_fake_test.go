package peripherals

type fakeNVIC struct {
	pending       []int
	systickPeriod uint32
}

func (f *fakeNVIC) SetPending(irq int)             { f.pending = append(f.pending, irq) }
func (f *fakeNVIC) SetSysTickPeriod(period uint32) { f.systickPeriod = period }
