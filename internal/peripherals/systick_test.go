package peripherals

import "testing"

func TestSysTickArmsPeriodWhenEnableAndTickintSet(t *testing.T) {
	nvic := &fakeNVIC{}
	s := NewSysTick(nvic)

	s.Write(stkLOAD, 16000)
	s.Write(stkCTRL, 0b11)

	if nvic.systickPeriod != 16000 {
		t.Fatalf("systickPeriod = %d, want 16000", nvic.systickPeriod)
	}
}

func TestSysTickDisarmsPeriodWhenTickintClear(t *testing.T) {
	nvic := &fakeNVIC{}
	s := NewSysTick(nvic)

	s.Write(stkLOAD, 16000)
	s.Write(stkCTRL, 0b11)
	s.Write(stkCTRL, 0b01) // ENABLE set, TICKINT clear

	if nvic.systickPeriod != 0 {
		t.Fatalf("systickPeriod = %d, want 0 after TICKINT cleared", nvic.systickPeriod)
	}
}

func TestSysTickLOADReadReturnsReload(t *testing.T) {
	s := NewSysTick(&fakeNVIC{})
	s.Write(stkLOAD, 4242)
	if got := s.Read(stkLOAD); got != 4242 {
		t.Fatalf("LOAD read = %d, want 4242", got)
	}
}
