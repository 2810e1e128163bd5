package cpuhost

import (
	"fmt"
	"time"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// regMap translates the fabric's engine-neutral register ids onto Unicorn's
// ARM register constants. Unicorn models CONTROL/PRIMASK/IPSR as ARM
// "system" registers on its Cortex-M mode; S0 is the first entry of its
// contiguous VFP single-precision bank.
var regMap = map[int]int{
	RegPC:      uc.ARM_REG_PC,
	RegLR:      uc.ARM_REG_LR,
	RegSP:      uc.ARM_REG_SP,
	RegMSP:     uc.ARM_REG_R13, // banked via CONTROL.SPSEL in Unicorn's model
	RegPSP:     uc.ARM_REG_R13,
	RegR0:      uc.ARM_REG_R0,
	RegR1:      uc.ARM_REG_R1,
	RegR2:      uc.ARM_REG_R2,
	RegR3:      uc.ARM_REG_R3,
	RegR12:     uc.ARM_REG_R12,
	RegXPSR:    uc.ARM_REG_XPSR,
	RegIPSR:    uc.ARM_REG_IPSR,
	RegCONTROL: uc.ARM_REG_CONTROL,
	RegPRIMASK: uc.ARM_REG_PRIMASK,
	RegS0:      uc.ARM_REG_S0,
}

// UnicornHost adapts a Unicorn ARM Cortex-M engine instance to the Host
// interface. This is the only concrete CPU host the fabric ships with;
// spec.md §1 treats the engine itself as external, so this file is
// intentionally thin — it does no instruction decode of its own.
type UnicornHost struct {
	mu  *uc.Unicorn
	eng uc.Unicorn
}

// NewUnicornHost constructs a Cortex-M (armv7m, thumb, little-endian)
// Unicorn instance.
func NewUnicornHost() (*UnicornHost, error) {
	eng, err := uc.NewUnicorn(uc.ARCH_ARM, uc.MODE_THUMB|uc.MODE_MCLASS|uc.MODE_LITTLE_ENDIAN)
	if err != nil {
		return nil, fmt.Errorf("cpuhost: open unicorn: %w", err)
	}
	return &UnicornHost{eng: eng}, nil
}

func (h *UnicornHost) RegRead(reg int) (uint64, error) {
	id, ok := regMap[reg]
	if !ok {
		return 0, ErrUnsupportedRegister
	}
	v, err := h.eng.RegRead(id)
	if err != nil {
		return 0, fmt.Errorf("cpuhost: reg read %d: %w", reg, err)
	}
	return v, nil
}

func (h *UnicornHost) RegWrite(reg int, value uint64) error {
	id, ok := regMap[reg]
	if !ok {
		return ErrUnsupportedRegister
	}
	if err := h.eng.RegWrite(id, value); err != nil {
		return fmt.Errorf("cpuhost: reg write %d: %w", reg, err)
	}
	return nil
}

func (h *UnicornHost) MemMap(addr, size uint64) error {
	if err := h.eng.MemMap(addr, size); err != nil {
		return fmt.Errorf("cpuhost: map [0x%x, 0x%x): %w", addr, addr+size, err)
	}
	return nil
}

func (h *UnicornHost) MemRead(addr uint64, size int) ([]byte, error) {
	b, err := h.eng.MemRead(addr, uint64(size))
	if err != nil {
		return nil, fmt.Errorf("cpuhost: mem read 0x%x/%d: %w", addr, size, err)
	}
	return b, nil
}

func (h *UnicornHost) MemWrite(addr uint64, data []byte) error {
	if err := h.eng.MemWrite(addr, data); err != nil {
		return fmt.Errorf("cpuhost: mem write 0x%x/%d: %w", addr, len(data), err)
	}
	return nil
}

func (h *UnicornHost) HookAddMMIO(addr, size uint64, fn AccessHook) error {
	_, err := h.eng.HookAddMMIO(addr, size,
		func(u uc.Unicorn, offset uint64, size int) uint64 {
			return fn(false, addr+offset, size, 0)
		},
		func(u uc.Unicorn, offset uint64, size int, value int64) {
			fn(true, addr+offset, size, uint64(value))
		},
	)
	if err != nil {
		return fmt.Errorf("cpuhost: hook mmio [0x%x, 0x%x): %w", addr, addr+size, err)
	}
	return nil
}

func (h *UnicornHost) HookAddCode(addr, size uint64, fn CodeHook) error {
	_, err := h.eng.HookAdd(uc.HOOK_CODE, func(u uc.Unicorn, paddr uint64, psize uint32) {
		fn(paddr, psize)
	}, addr, addr+size)
	if err != nil {
		return fmt.Errorf("cpuhost: hook code: %w", err)
	}
	return nil
}

func (h *UnicornHost) HookAddInterrupt(fn InterruptHook) error {
	_, err := h.eng.HookAdd(uc.HOOK_INTR, func(u uc.Unicorn, intno uint32) {
		fn(intno)
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("cpuhost: hook intr: %w", err)
	}
	return nil
}

func (h *UnicornHost) HookAddMemFault(fn MemFaultHook) error {
	_, err := h.eng.HookAdd(uc.HOOK_MEM_UNMAPPED, func(u uc.Unicorn, access int, addr uint64, size int, value int64) bool {
		return fn(access == uc.MEM_WRITE_UNMAPPED, addr, size)
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("cpuhost: hook mem fault: %w", err)
	}
	return nil
}

func (h *UnicornHost) Start(pc, stopAddr uint64, timeoutNanos, maxInsn uint64) error {
	if err := h.eng.StartWithOptions(pc, stopAddr, &uc.UcOptions{
		Timeout: time.Duration(timeoutNanos),
		Count:   int(maxInsn),
	}); err != nil {
		return fmt.Errorf("cpuhost: start: %w", err)
	}
	return nil
}

func (h *UnicornHost) Stop() error {
	if err := h.eng.Stop(); err != nil {
		return fmt.Errorf("cpuhost: stop: %w", err)
	}
	return nil
}
