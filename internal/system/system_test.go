package system

import (
	"testing"

	"github.com/stm32emu/stm32emu/internal/framebuffer"
	"github.com/stm32emu/stm32emu/internal/peripherals"
)

func TestRoundUp4K(t *testing.T) {
	cases := []struct{ in, want uint32 }{
		{0, 0},
		{1, 4096},
		{4096, 4096},
		{4097, 8192},
	}
	for _, c := range cases {
		if got := roundUp4K(c.in); got != c.want {
			t.Fatalf("roundUp4K(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFSMCBankForPeripheral(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"FSMC.BANK1", 1},
		{"fsmc.bank3", 3},
		{"lcd0", 0},
	}
	for _, c := range cases {
		if got := fsmcBankForPeripheral(c.name); got != c.want {
			t.Fatalf("fsmcBankForPeripheral(%q) = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestParsePixelMode(t *testing.T) {
	if m, err := parsePixelMode("rgb565"); err != nil || m != framebuffer.RGB565 {
		t.Fatalf("parsePixelMode(rgb565) = (%v, %v), want (RGB565, nil)", m, err)
	}
	if m, err := parsePixelMode("rgb888"); err != nil || m != framebuffer.RGB888 {
		t.Fatalf("parsePixelMode(rgb888) = (%v, %v), want (RGB888, nil)", m, err)
	}
	if m, err := parsePixelMode("gray8"); err != nil || m != framebuffer.Gray8 {
		t.Fatalf("parsePixelMode(gray8) = (%v, %v), want (Gray8, nil)", m, err)
	}
	if _, err := parsePixelMode("rgb999"); err == nil {
		t.Fatal("parsePixelMode(rgb999): expected an error, got nil")
	}
}

func TestAccessKind(t *testing.T) {
	if got := accessKind(true); got != "write" {
		t.Fatalf("accessKind(true) = %q, want write", got)
	}
	if got := accessKind(false); got != "read" {
		t.Fatalf("accessKind(false) = %q, want read", got)
	}
}

func TestResolvePinParsesPortAndNumber(t *testing.T) {
	s := &System{gpio: peripherals.NewGPIO()}

	pin, err := s.resolvePin("PA12")
	if err != nil {
		t.Fatalf("resolvePin(PA12): %v", err)
	}
	want := s.gpio.Port('A').Pin(12)
	if pin != want {
		t.Fatalf("resolvePin(PA12) = %p, want %p (GPIOA pin 12)", pin, want)
	}
}

func TestResolvePinRejectsMalformedNames(t *testing.T) {
	s := &System{gpio: peripherals.NewGPIO()}

	cases := []string{"", "X", "Z0", "PA", "PA99"}
	for _, name := range cases {
		if _, err := s.resolvePin(name); err == nil {
			t.Fatalf("resolvePin(%q): expected an error, got nil", name)
		}
	}
}
