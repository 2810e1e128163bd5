package registry

import (
	"testing"

	"github.com/stm32emu/stm32emu/internal/router"
	"github.com/stm32emu/stm32emu/internal/svd"
)

type fakePeripheral struct {
	reads  []uint32
	writes map[uint32]uint32
}

func newFakePeripheral() *fakePeripheral {
	return &fakePeripheral{writes: make(map[uint32]uint32)}
}

func (f *fakePeripheral) Read(offset uint32) uint32 {
	f.reads = append(f.reads, offset)
	return f.writes[offset]
}

func (f *fakePeripheral) Write(offset uint32, v uint32) { f.writes[offset] = v }

func TestRegistryByNameAndPeripheralAt(t *testing.T) {
	rtr := router.New()
	reg := New(rtr)

	p := newFakePeripheral()
	regs := []svd.Register{{Name: "CR1", Offset: 0}, {Name: "CR2", Offset: 4}}
	reg.Register("SPI1", 0x40013000, 0x40013400, p, regs)

	e, ok := reg.ByName("SPI1")
	if !ok {
		t.Fatal("ByName(SPI1): not found")
	}
	if e.Start != 0x40013000 || e.End != 0x40013400 {
		t.Fatalf("entry bounds = [0x%x,0x%x), want [0x40013000,0x40013400)", e.Start, e.End)
	}

	model, base, found := reg.PeripheralAt(0x40013004)
	if !found {
		t.Fatal("PeripheralAt: not found")
	}
	if base != 0x40013000 {
		t.Fatalf("PeripheralAt base = 0x%x, want 0x40013000", base)
	}
	model.Write(8, 0x99)
	if p.writes[8] != 0x99 {
		t.Fatal("PeripheralAt: returned model does not forward to the registered peripheral")
	}
}

func TestRegistryDescribeKnownAndUnknownRegister(t *testing.T) {
	rtr := router.New()
	reg := New(rtr)

	p := newFakePeripheral()
	regs := []svd.Register{{Name: "CR", DisplayName: "Control", Offset: 0}}
	reg.Register("RCC", 0x40023800, 0x40023C00, p, regs)

	got := reg.Describe(0x40023800)
	if got != "RCC.Control" {
		t.Fatalf("Describe(known) = %q, want %q", got, "RCC.Control")
	}

	got = reg.Describe(0x40023804)
	if got != "RCC" {
		t.Fatalf("Describe(unknown register) = %q, want %q", got, "RCC")
	}

	got = reg.Describe(0x50000000)
	if got != "0x50000000" {
		t.Fatalf("Describe(unmapped) = %q, want %q", got, "0x50000000")
	}
}

func TestRegistryFinalizeRejectsOverlap(t *testing.T) {
	rtr := router.New()
	reg := New(rtr)

	p1, p2 := newFakePeripheral(), newFakePeripheral()
	reg.Register("A", 0x40000000, 0x40000400, p1, nil)
	reg.Register("B", 0x40000200, 0x40000600, p2, nil)

	if err := reg.Finalize(); err == nil {
		t.Fatal("Finalize: expected overlap error, got nil")
	}
}
