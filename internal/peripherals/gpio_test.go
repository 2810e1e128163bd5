package peripherals

import "testing"

func TestGPIOWriteODRFansOutOnlyChangedPins(t *testing.T) {
	p := &Port{}
	var got []bool
	p.Pin(0).Write = append(p.Pin(0).Write, func(level bool) { got = append(got, level) })
	p.Pin(1).Write = append(p.Pin(1).Write, func(level bool) { got = append(got, level) })

	p.Write(gpioODR, 0b01)
	if len(got) != 1 || got[0] != true {
		t.Fatalf("callbacks after first write = %v, want [true]", got)
	}

	// Flip pin 1 only; pin 0's callback must not fire again since its
	// level didn't change.
	p.Write(gpioODR, 0b11)
	if len(got) != 2 || got[1] != true {
		t.Fatalf("callbacks after second write = %v, want [true true]", got)
	}
}

func TestGPIOBSRRSetAndReset(t *testing.T) {
	p := &Port{}

	p.Write(gpioBSRR, 1<<3) // set pin 3
	if p.Read(gpioODR)&(1<<3) == 0 {
		t.Fatal("BSRR set bit did not set ODR")
	}

	p.Write(gpioBSRR, 1<<(16+3)) // reset pin 3
	if p.Read(gpioODR)&(1<<3) != 0 {
		t.Fatal("BSRR reset bit did not clear ODR")
	}
}

func TestGPIOIDRSynthesizedFromReadCallbacks(t *testing.T) {
	p := &Port{}
	p.Pin(2).Read = func() bool { return true }

	if got := p.Read(gpioIDR); got != 1<<2 {
		t.Fatalf("IDR = 0x%x, want 0x%x", got, uint32(1<<2))
	}
}

func TestGPIOPortIndexRange(t *testing.T) {
	if idx, ok := PortIndex('A'); !ok || idx != 0 {
		t.Fatalf("PortIndex('A') = (%d,%v), want (0,true)", idx, ok)
	}
	if idx, ok := PortIndex('K'); !ok || idx != 10 {
		t.Fatalf("PortIndex('K') = (%d,%v), want (10,true)", idx, ok)
	}
	if _, ok := PortIndex('L'); ok {
		t.Fatal("PortIndex('L') should be out of range")
	}
}

func TestGPIOPortLookup(t *testing.T) {
	g := NewGPIO()
	if g.Port('A') != g.Ports[0] {
		t.Fatal("Port('A') did not return Ports[0]")
	}
	if g.Port('Z') != nil {
		t.Fatal("Port('Z') should be nil")
	}
}
