package peripherals

import "testing"

func TestSCBICSRSysTickBitPendsSysTick(t *testing.T) {
	nvic := &fakeNVIC{}
	s := NewSCB(nvic)

	s.Write(scbICSR, 1<<icsrSysTickBit)

	if len(nvic.pending) != 1 || nvic.pending[0] != IRQSysTick {
		t.Fatalf("pending = %v, want [%d]", nvic.pending, IRQSysTick)
	}
}

func TestSCBICSRPendSVBitPendsPendSV(t *testing.T) {
	nvic := &fakeNVIC{}
	s := NewSCB(nvic)

	s.Write(scbICSR, 1<<icsrPendSVBit)

	if len(nvic.pending) != 1 || nvic.pending[0] != IRQPendSV {
		t.Fatalf("pending = %v, want [%d]", nvic.pending, IRQPendSV)
	}
}

func TestSCBICSRBothBitsPendBoth(t *testing.T) {
	nvic := &fakeNVIC{}
	s := NewSCB(nvic)

	s.Write(scbICSR, 1<<icsrSysTickBit|1<<icsrPendSVBit)

	if len(nvic.pending) != 2 {
		t.Fatalf("pending = %v, want 2 entries", nvic.pending)
	}
}

func TestSCBWriteToOtherOffsetIsIgnored(t *testing.T) {
	nvic := &fakeNVIC{}
	s := NewSCB(nvic)

	s.Write(0x08, 0xFFFFFFFF)

	if len(nvic.pending) != 0 {
		t.Fatalf("pending = %v, want none", nvic.pending)
	}
}
