// Package cpuhost defines the narrow boundary between the peripheral
// emulation fabric and the CPU execution engine. The engine itself —
// instruction decode/execute, the MMU, the register file — is an external
// collaborator (spec.md §1); this package only describes the surface the
// fabric needs from it and adapts that surface onto a concrete engine.
package cpuhost

import "fmt"

// AccessHook is invoked for every MMIO read/write the CPU host dispatches
// to a hooked region. For reads, the returned value is ignored by the host
// for writes and used as the loaded value for reads.
type AccessHook func(write bool, addr uint64, size int, value uint64) uint64

// CodeHook is invoked once per executed instruction.
type CodeHook func(pc uint64, size uint32)

// InterruptHook is invoked when the CPU host raises a synthetic exception,
// e.g. EXCP_EXCEPTION_EXIT on exception-return branches, or a data abort.
// intno is the host's exception number (engine-specific).
type InterruptHook func(intno uint32)

// MemFaultHook is invoked when the CPU host traps an access to unmapped
// memory. It must return true if execution should be allowed to continue
// (the fabric has already advanced PC past the faulting instruction).
type MemFaultHook func(write bool, addr uint64, size int) (handled bool)

// Host is the CPU execution engine surface the fabric depends on. It is
// satisfied by the Unicorn-backed adapter in this package, and could be
// satisfied by any engine exposing register/memory access, MMIO hooking,
// and cooperative start/stop — the fabric never assumes a concrete engine.
type Host interface {
	// RegRead/RegWrite access the CPU's general-purpose and special
	// registers. reg is an engine-specific register id (see Reg*).
	RegRead(reg int) (uint64, error)
	RegWrite(reg int, value uint64) error

	// MemMap maps size bytes of RAM at addr with full permissions.
	MemMap(addr, size uint64) error
	// MemRead/MemWrite access CPU-visible memory directly (used by DMA and
	// region/patch loading).
	MemRead(addr uint64, size int) ([]byte, error)
	MemWrite(addr uint64, data []byte) error

	// HookAddMMIO registers addr/size/fn as an MMIO region. Only one hook
	// per region is supported; the fabric registers exactly one per
	// peripheral slot range (spec.md §4.9 step 4).
	HookAddMMIO(addr, size uint64, fn AccessHook) error
	// HookAddCode registers a per-instruction hook over the given address
	// range (typically the whole address space).
	HookAddCode(addr, size uint64, fn CodeHook) error
	// HookAddInterrupt registers the host's synthetic-exception hook.
	HookAddInterrupt(fn InterruptHook) error
	// HookAddMemFault registers the unmapped-access trap hook.
	HookAddMemFault(fn MemFaultHook) error

	// Start begins execution at pc and runs until stopAddr is reached (0
	// disables), timeout elapses (0 disables), or maxInsn instructions
	// have executed (0 disables). Returns when the host yields control
	// back to the emulation loop (spec.md §4.9's outer loop).
	Start(pc uint64, stopAddr uint64, timeoutNanos uint64, maxInsn uint64) error
	// Stop requests the host halt Start as soon as possible.
	Stop() error
}

// Register ids understood by RegRead/RegWrite, covering exactly what the
// fabric needs: the program counter, the link register, the stack pointers,
// and the two exception-control registers the interrupt controller reads
// and writes during dispatch (spec.md §4.7).
const (
	RegPC = iota
	RegLR
	RegSP  // the currently active SP (MSP or PSP per CONTROL.SPSEL)
	RegMSP
	RegPSP
	RegR0
	RegR1
	RegR2
	RegR3
	RegR12
	RegXPSR
	RegIPSR
	RegCONTROL
	RegPRIMASK
	RegS0 // first of the S0..S15 FPU register bank, contiguous ids follow
)

// ErrUnsupportedRegister is returned by adapter implementations for a
// register id outside the set above.
var ErrUnsupportedRegister = fmt.Errorf("cpuhost: unsupported register id")
