package irq

import (
	"fmt"
	"testing"

	"github.com/stm32emu/stm32emu/internal/cpuhost"
)

type fakeHost struct {
	regs map[int]uint64
	mem  map[uint64]byte
}

func newFakeHost() *fakeHost {
	return &fakeHost{regs: make(map[int]uint64), mem: make(map[uint64]byte)}
}

func (h *fakeHost) RegRead(reg int) (uint64, error)  { return h.regs[reg], nil }
func (h *fakeHost) RegWrite(reg int, v uint64) error { h.regs[reg] = v; return nil }

func (h *fakeHost) MemRead(addr uint64, size int) ([]byte, error) {
	b := make([]byte, size)
	for i := 0; i < size; i++ {
		b[i] = h.mem[addr+uint64(i)]
	}
	return b, nil
}

func (h *fakeHost) MemWrite(addr uint64, data []byte) error {
	for i, b := range data {
		h.mem[addr+uint64(i)] = b
	}
	return nil
}

func (h *fakeHost) writeWord32(addr uint64, v uint32) {
	_ = h.MemWrite(addr, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (h *fakeHost) word32(addr uint64) uint32 {
	b, _ := h.MemRead(addr, 4)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

type fakeLogger struct{ fatal []string }

func (l *fakeLogger) Fatalf(format string, args ...any) {
	l.fatal = append(l.fatal, fmt.Sprintf(format, args...))
}

const vectorTable = 0x08000000

func TestDispatchWritesHandlerPCAndEXCReturn(t *testing.T) {
	h := newFakeHost()
	log := &fakeLogger{}
	c := New(h, log, vectorTable, 1)

	const irqNum = 3
	h.writeWord32(vectorTable+4*(16+irqNum), 0x08001234)
	h.regs[cpuhost.RegMSP] = 0x20001000

	c.SetPending(irqNum)
	c.RunPending(0)

	if pc := h.regs[cpuhost.RegPC]; pc != 0x08001234 {
		t.Fatalf("PC = 0x%x, want 0x08001234", pc)
	}
	if ipsr := h.regs[cpuhost.RegIPSR]; ipsr != 16+irqNum {
		t.Fatalf("IPSR = %d, want %d (exception number, not bare IRQ index)", ipsr, 16+irqNum)
	}
	if lr := h.regs[cpuhost.RegLR]; lr&0xFFFFFF00 != 0xFFFFFF00 {
		t.Fatalf("LR = 0x%x, not an EXC_RETURN sentinel", lr)
	}
	if !c.InFlight() {
		t.Fatal("InFlight() = false after dispatch, want true")
	}
	if len(log.fatal) != 0 {
		t.Fatalf("unexpected fatal log entries: %v", log.fatal)
	}
}

func TestDispatchPushesBasicFrameBelowSP(t *testing.T) {
	h := newFakeHost()
	log := &fakeLogger{}
	c := New(h, log, vectorTable, 1)

	h.writeWord32(vectorTable+4*16, 0x08000001) // IRQ 0 handler
	h.regs[cpuhost.RegMSP] = 0x20001000
	h.regs[cpuhost.RegR0] = 0xAAAAAAAA
	h.regs[cpuhost.RegXPSR] = 0x01000000

	c.SetPending(0)
	c.RunPending(0)

	newSP := h.regs[cpuhost.RegMSP]
	if newSP != 0x20001000-32 {
		t.Fatalf("SP after push = 0x%x, want 0x%x", newSP, 0x20001000-32)
	}
	if got := h.word32(newSP); got != 0xAAAAAAAA {
		t.Fatalf("R0 on stack = 0x%x, want 0xaaaaaaaa", got)
	}
	if got := h.word32(newSP + 28); got != 0x01000000 {
		t.Fatalf("XPSR on stack = 0x%x, want 0x01000000", got)
	}
}

func TestDispatchExtendedFramePlacesIntegerRegsBelowFPRegs(t *testing.T) {
	h := newFakeHost()
	log := &fakeLogger{}
	c := New(h, log, vectorTable, 1)

	h.writeWord32(vectorTable+4*16, 0x08000001) // IRQ 0 handler
	h.regs[cpuhost.RegMSP] = 0x20001000
	h.regs[cpuhost.RegCONTROL] = 1 << 2 // FPCA set: extended frame
	h.regs[cpuhost.RegR0] = 0xAAAAAAAA
	h.regs[cpuhost.RegXPSR] = 0x01000000
	h.regs[cpuhost.RegS0] = 0x11110000
	h.regs[cpuhost.RegS0+15] = 0xFFFF0000 // S15

	c.SetPending(0)
	c.RunPending(0)

	newSP := h.regs[cpuhost.RegMSP]
	const frameSize = 32 + 17*4 // basic frame + S0..S15 + FPSCR
	if newSP != 0x20001000-frameSize {
		t.Fatalf("SP after push = 0x%x, want 0x%x", newSP, 0x20001000-frameSize)
	}
	// Integer frame occupies the lowest addresses: R0 at newSP, XPSR at
	// newSP+28, per the original's CONTEXT_REGS push order (R0 last pushed,
	// i.e. lowest address).
	if got := h.word32(newSP); got != 0xAAAAAAAA {
		t.Fatalf("R0 on stack = 0x%x, want 0xaaaaaaaa (at the lowest address)", got)
	}
	if got := h.word32(newSP + 28); got != 0x01000000 {
		t.Fatalf("XPSR on stack = 0x%x, want 0x01000000", got)
	}
	// S0..S15 and FPSCR sit above XPSR, not below R0.
	if got := h.word32(newSP + 32); got != 0x11110000 {
		t.Fatalf("S0 on stack = 0x%x, want 0x11110000 (immediately above XPSR)", got)
	}
	if got := h.word32(newSP + 32 + 15*4); got != 0xFFFF0000 {
		t.Fatalf("S15 on stack = 0x%x, want 0xffff0000", got)
	}
}

func TestRunPendingSkipsDispatchWhenPrimaskSet(t *testing.T) {
	h := newFakeHost()
	log := &fakeLogger{}
	c := New(h, log, vectorTable, 1)

	h.regs[cpuhost.RegPRIMASK] = 1
	c.SetPending(0)
	c.RunPending(0)

	if c.InFlight() {
		t.Fatal("InFlight() = true, want false (PRIMASK masked all interrupts)")
	}
}

func TestRunPendingDoesNotNestASecondException(t *testing.T) {
	h := newFakeHost()
	log := &fakeLogger{}
	c := New(h, log, vectorTable, 1)

	h.regs[cpuhost.RegMSP] = 0x20001000
	c.SetPending(0)
	c.RunPending(0)
	if !c.InFlight() {
		t.Fatal("first dispatch should have entered Handling state")
	}

	spAfterFirst := h.regs[cpuhost.RegMSP]
	c.SetPending(1)
	c.RunPending(0)

	if h.regs[cpuhost.RegMSP] != spAfterFirst {
		t.Fatal("RunPending dispatched a second exception while one was already in flight")
	}
}

func TestHandleExceptionExitRestoresRegistersAndSP(t *testing.T) {
	h := newFakeHost()
	log := &fakeLogger{}
	c := New(h, log, vectorTable, 1)

	h.writeWord32(vectorTable+4*16, 0x08000100)
	h.regs[cpuhost.RegMSP] = 0x20001000
	h.regs[cpuhost.RegR0] = 0x11111111
	h.regs[cpuhost.RegPC] = 0x08000002 // pre-exception return address

	c.SetPending(0)
	c.RunPending(0)
	if !c.InFlight() {
		t.Fatal("dispatch did not enter Handling state")
	}

	c.HandleExceptionExit()

	if c.InFlight() {
		t.Fatal("InFlight() = true after exception exit, want false")
	}
	if sp := h.regs[cpuhost.RegMSP]; sp != 0x20001000 {
		t.Fatalf("SP after exit = 0x%x, want restored 0x20001000", sp)
	}
	if r0 := h.regs[cpuhost.RegR0]; r0 != 0x11111111 {
		t.Fatalf("R0 after exit = 0x%x, want restored 0x11111111", r0)
	}
	if pc := h.regs[cpuhost.RegPC]; pc != 0x08000002 {
		t.Fatalf("PC after exit = 0x%x, want restored 0x08000002", pc)
	}
}

func TestSetPendingIgnoresOutOfRangeIRQ(t *testing.T) {
	h := newFakeHost()
	log := &fakeLogger{}
	c := New(h, log, vectorTable, 1)

	c.SetPending(-100) // bit = 16-100 = -84, out of range
	c.RunPending(0)
	if c.InFlight() {
		t.Fatal("out-of-range SetPending must not mark anything pending")
	}
}
