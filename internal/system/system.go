// Package system implements spec.md §4.9: assembling every component
// (memory regions, framebuffers, GPIO, external devices, peripherals, the
// router, the interrupt controller) from a config.Config + SVD device, and
// driving the single-threaded cooperative emulation loop described in
// spec.md §5. Grounded on cpu_x86_runner.go's CPUX86Runner (a thin
// owner-of-everything struct whose Run method drives the CPU in a
// start/check/repeat loop) and machine_bus.go's whole-system wiring, now
// generalized from a fixed home-computer bus to config/SVD-driven assembly.
package system

import (
	"fmt"
	"os"
	"strings"

	"github.com/stm32emu/stm32emu/internal/config"
	"github.com/stm32emu/stm32emu/internal/cpuhost"
	"github.com/stm32emu/stm32emu/internal/devices"
	"github.com/stm32emu/stm32emu/internal/framebuffer"
	"github.com/stm32emu/stm32emu/internal/irq"
	"github.com/stm32emu/stm32emu/internal/peripherals"
	"github.com/stm32emu/stm32emu/internal/registry"
	"github.com/stm32emu/stm32emu/internal/router"
	"github.com/stm32emu/stm32emu/internal/svd"
	"github.com/stm32emu/stm32emu/internal/swspi"
	"github.com/stm32emu/stm32emu/internal/tracelog"
)

// PumpEventInstInterval is spec.md §4.9's PUMP_EVENT_INST_INTERVAL: the
// instruction cadence at which presentation backends are checked for a
// host quit event (window close).
const PumpEventInstInterval = 100_000

const regionPageSize = 4096

// EXCExceptionExit is the CPU-host interrupt code the interrupt controller's
// return path handles, per spec.md §4.7.
const EXCExceptionExit = 8

// Options are the CLI-exposed runtime knobs of spec.md §6.
type Options struct {
	MaxInstructions uint64
	StopAddr        uint64
	BusyLoopStop    bool
	InterruptPeriod uint64
	DumpStackWords  int
}

// System owns every assembled component and drives the emulation loop.
type System struct {
	host cpuhost.Host
	log  *tracelog.Logger
	opts Options

	rtr  *router.Router
	reg  *registry.Registry
	irqc *irq.Controller
	gpio *peripherals.GPIO

	framebuffers map[string]*framebuffer.Framebuffer
	presenters   []*presentationHandle
	usartProbes  []*devices.USARTProbe

	vectorTable uint32

	lastPC            uint32
	continueExecution bool
	stopRequested     bool
	resumePC          uint64
	instructionTick   uint64
}

type presentationHandle struct {
	backend *framebuffer.PresentationBackend
}

// New assembles a System from cfg, per spec.md §4.9's setup steps 1-7.
func New(cfg *config.Config, host cpuhost.Host, log *tracelog.Logger, opts Options) (*System, error) {
	s := &System{
		host:         host,
		log:          log,
		opts:         opts,
		vectorTable:  cfg.CPU.VectorTable,
		framebuffers: make(map[string]*framebuffer.Framebuffer),
	}

	if err := s.loadRegions(cfg.Regions); err != nil {
		return nil, err
	}
	if err := s.applyPatches(cfg.Patches); err != nil {
		return nil, err
	}

	if err := s.buildFramebuffers(cfg.Framebuffers); err != nil {
		return nil, err
	}

	s.gpio = peripherals.NewGPIO()

	byteDevices, memDevices, err := s.buildDevices(cfg.Devices)
	if err != nil {
		return nil, err
	}

	s.irqc = irq.New(host, log, cfg.CPU.VectorTable, opts.InterruptPeriod)
	log.BindClock(s.irqc)

	dev, err := svd.Load(cfg.CPU.SVD)
	if err != nil {
		return nil, err
	}

	s.rtr = router.New()
	s.reg = registry.New(s.rtr)

	if err := s.buildPeripherals(dev, byteDevices, memDevices); err != nil {
		return nil, err
	}

	s.bindSoftwareSPI(cfg.Peripherals.SoftwareSPI, byteDevices)

	if err := s.reg.Finalize(); err != nil {
		return nil, err
	}

	if err := s.registerMMIO(dev); err != nil {
		return nil, err
	}
	if err := s.registerHooks(); err != nil {
		return nil, err
	}

	return s, nil
}

// loadRegions implements spec.md §4.9 step 1.
func (s *System) loadRegions(regions []config.Region) error {
	for _, r := range regions {
		mapped := roundUp4K(r.Size)
		if err := s.host.MemMap(uint64(r.Start), uint64(mapped)); err != nil {
			return fmt.Errorf("system: map region %q: %w", r.Name, err)
		}
		if r.Load == "" {
			continue
		}
		data, err := os.ReadFile(r.Load)
		if err != nil {
			return fmt.Errorf("system: load region %q from %s: %w", r.Name, r.Load, err)
		}
		if uint32(len(data)) > r.Size {
			data = data[:r.Size]
		}
		if err := s.host.MemWrite(uint64(r.Start), data); err != nil {
			return fmt.Errorf("system: write region %q: %w", r.Name, err)
		}
	}
	return nil
}

func roundUp4K(size uint32) uint32 {
	return (size + regionPageSize - 1) &^ (regionPageSize - 1)
}

// EntryPoint reads the Cortex-M reset vector table at cfg.cpu.vector_table
// (word 0: initial MSP, word 1: reset handler PC), writes the initial SP
// into the CPU host, and returns the reset PC the caller should start
// execution from. Must be called after loadRegions has mapped the region
// containing the vector table.
func (s *System) EntryPoint() (uint64, error) {
	sp, err := s.readWord(uint64(s.vectorTable))
	if err != nil {
		return 0, fmt.Errorf("system: read initial SP from vector table: %w", err)
	}
	reset, err := s.readWord(uint64(s.vectorTable) + 4)
	if err != nil {
		return 0, fmt.Errorf("system: read reset vector from vector table: %w", err)
	}
	if err := s.host.RegWrite(cpuhost.RegMSP, uint64(sp)); err != nil {
		return 0, fmt.Errorf("system: write initial SP: %w", err)
	}
	if err := s.host.RegWrite(cpuhost.RegSP, uint64(sp)); err != nil {
		return 0, fmt.Errorf("system: write initial SP: %w", err)
	}
	return uint64(reset), nil
}

func (s *System) readWord(addr uint64) (uint32, error) {
	data, err := s.host.MemRead(addr, 4)
	if err != nil {
		return 0, err
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24, nil
}

// applyPatches implements spec.md §4.9 step 2.
func (s *System) applyPatches(patches []config.Patch) error {
	for _, p := range patches {
		if err := s.host.MemWrite(uint64(p.Start), p.Data); err != nil {
			return fmt.Errorf("system: apply patch at 0x%x: %w", p.Start, err)
		}
	}
	return nil
}

// buildFramebuffers constructs every configured framebuffer and its single
// backend (image or presentation), per spec.md §4.8.
func (s *System) buildFramebuffers(cfgs []config.FramebufferConfig) error {
	for _, fc := range cfgs {
		mode, err := parsePixelMode(fc.Mode)
		if err != nil {
			return fmt.Errorf("system: framebuffer %q: %w", fc.Name, err)
		}
		fb := framebuffer.New(fc.Name, int(fc.Width), int(fc.Height), mode)

		switch {
		case fc.Image != nil:
			fb.SetBackend(framebuffer.NewImageBackend(fc.Image.File, fb))
		case fc.SDL:
			downscale := int(fc.Downscale)
			backend := framebuffer.NewPresentationBackend(fb, downscale)
			fb.SetBackend(backend)
			s.presenters = append(s.presenters, &presentationHandle{backend: backend})
		}

		s.framebuffers[fc.Name] = fb
	}
	return nil
}

func parsePixelMode(mode string) (framebuffer.PixelMode, error) {
	switch mode {
	case "rgb565":
		return framebuffer.RGB565, nil
	case "rgb888":
		return framebuffer.RGB888, nil
	case "gray8":
		return framebuffer.Gray8, nil
	default:
		return 0, fmt.Errorf("unknown pixel mode %q", mode)
	}
}

// buildDevices constructs every configured external device, keyed by the
// peripheral name it will be bound to, per spec.md §4.4/§4.2's
// "External-Device Binding."
func (s *System) buildDevices(cfg config.DevicesConfig) (byteDevices map[string]peripherals.ByteStreamDevice, memDevices map[string]peripherals.MemMappedDevice, err error) {
	byteDevices = make(map[string]peripherals.ByteStreamDevice)
	memDevices = make(map[string]peripherals.MemMappedDevice)

	for _, fc := range cfg.SPIFlash {
		var content []byte
		if fc.File != "" {
			content, err = os.ReadFile(fc.File)
			if err != nil {
				return nil, nil, fmt.Errorf("system: spi_flash %q: %w", fc.Peripheral, err)
			}
		}
		dev := devices.NewSPIFlash(s.log, devices.SPIFlashConfig{Peripheral: fc.Peripheral, JEDECID: fc.JEDECID, Size: fc.Size}, content)
		byteDevices[fc.Peripheral] = dev
	}

	for _, pc := range cfg.USARTProbe {
		dev := devices.NewUSARTProbe(s.log, devices.USARTProbeConfig{Peripheral: pc.Peripheral})
		byteDevices[pc.Peripheral] = dev
		s.usartProbes = append(s.usartProbes, dev)
	}

	for _, dc := range cfg.Display {
		fb, ok := s.framebuffers[dc.Framebuffer]
		if !ok {
			return nil, nil, fmt.Errorf("system: display %q references unknown framebuffer %q", dc.Peripheral, dc.Framebuffer)
		}
		replies := make(map[byte][]byte, len(dc.Replies))
		for _, r := range dc.Replies {
			buf := make([]byte, 0, len(r.Data)*2)
			for _, w := range r.Data {
				buf = append(buf, byte(w>>8), byte(w))
			}
			replies[r.Cmd] = buf
		}
		dev := devices.NewDisplay(devices.DisplayConfig{
			Peripheral: dc.Peripheral,
			CmdAddrBit: dc.CmdAddrBit,
			SwapBytes:  dc.SwapBytes,
			Replies:    replies,
		}, fb)
		memDevices[dc.Peripheral] = dev
	}

	for _, lc := range cfg.LCD {
		fb, ok := s.framebuffers[lc.Framebuffer]
		if !ok {
			return nil, nil, fmt.Errorf("system: lcd %q references unknown framebuffer %q", lc.Peripheral, lc.Framebuffer)
		}
		dev := devices.NewLCD(devices.LCDConfig{Peripheral: lc.Peripheral}, fb)
		byteDevices[lc.Peripheral] = dev
	}

	for _, tc := range cfg.Touchscreen {
		fb, ok := s.framebuffers[tc.Framebuffer]
		if !ok {
			return nil, nil, fmt.Errorf("system: touchscreen %q references unknown framebuffer %q", tc.Peripheral, tc.Framebuffer)
		}
		dev := devices.NewTouchscreen(devices.TouchscreenConfig{
			Peripheral:       tc.Peripheral,
			FlipX:            tc.FlipX,
			FlipY:            tc.FlipY,
			SwapXY:           tc.SwapXY,
			TouchDetectedPin: tc.TouchDetectedPin,
			ScaleDown:        tc.ScaleDown,
		}, fb)
		byteDevices[tc.Peripheral] = dev

		if tc.TouchDetectedPin != "" {
			pin, err := s.resolvePin(tc.TouchDetectedPin)
			if err != nil {
				return nil, nil, fmt.Errorf("system: touchscreen %q: %w", tc.Peripheral, err)
			}
			dev.BindDetectPin(pin)
		}
	}

	return byteDevices, memDevices, nil
}

// resolvePin parses a "PA12"-style pin name into a *peripherals.Pin.
func (s *System) resolvePin(name string) (*peripherals.Pin, error) {
	if len(name) < 3 || name[0] != 'P' {
		return nil, fmt.Errorf("malformed pin name %q", name)
	}
	port := s.gpio.Port(name[1])
	if port == nil {
		return nil, fmt.Errorf("unknown GPIO port in pin name %q", name)
	}
	var n int
	if _, err := fmt.Sscanf(name[2:], "%d", &n); err != nil || n < 0 || n >= peripherals.PinsPerPort {
		return nil, fmt.Errorf("bad pin number in %q", name)
	}
	return port.Pin(n), nil
}

// bindSoftwareSPI constructs and wires every configured software-SPI
// instance, per spec.md §4.5.
func (s *System) bindSoftwareSPI(cfgs []config.SoftwareSPI, byteDevices map[string]peripherals.ByteStreamDevice) {
	for _, sc := range cfgs {
		dev := byteDevices[sc.Name]
		ss := swspi.New(dev)

		var csPin *peripherals.Pin
		if sc.CS != "" {
			if p, err := s.resolvePin(sc.CS); err == nil {
				csPin = p
			} else {
				s.log.Warnf("swspi %q: %v", sc.Name, err)
			}
		}
		clkPin, err := s.resolvePin(sc.CLK)
		if err != nil {
			s.log.Warnf("swspi %q: %v", sc.Name, err)
			continue
		}
		misoPin, err := s.resolvePin(sc.MISO)
		if err != nil {
			s.log.Warnf("swspi %q: %v", sc.Name, err)
			continue
		}
		mosiPin, err := s.resolvePin(sc.MOSI)
		if err != nil {
			s.log.Warnf("swspi %q: %v", sc.Name, err)
			continue
		}
		ss.Bind(csPin, clkPin, misoPin, mosiPin)
	}
}

// buildPeripherals instantiates a concrete peripheral model per SVD entry,
// dispatching by name pattern per spec.md §4.2/§4.3, and registers each in
// the registry.
func (s *System) buildPeripherals(dev *svd.Device, byteDevices map[string]peripherals.ByteStreamDevice, memDevices map[string]peripherals.MemMappedDevice) error {
	blockSize := func(regs []svd.Register) uint32 {
		var max uint32
		for _, r := range regs {
			end := r.Offset + 4
			if end > max {
				max = end
			}
		}
		if max == 0 {
			max = 4
		}
		return max
	}

	var fsmc *peripherals.FSMC

	for _, p := range dev.Peripherals {
		name := p.Name
		upper := strings.ToUpper(name)
		start := p.BaseAddress
		end := start + blockSize(p.Registers)

		var model peripherals.Peripheral

		switch {
		case upper == "RCC":
			model = peripherals.NewRCC()
		case upper == "SYSTICK" || upper == "STK":
			model = peripherals.NewSysTick(s.irqc)
		case upper == "SCB":
			model = peripherals.NewSCB(s.irqc)
		case upper == "NVIC" || strings.HasPrefix(upper, "NVIC"):
			model = peripherals.NewNVICFacade()
		case strings.HasPrefix(upper, "GPIO") && len(name) > 4:
			port := s.gpio.Port(upper[4])
			if port == nil {
				return fmt.Errorf("system: peripheral %q: unrecognized GPIO port letter", name)
			}
			model = port
		case strings.HasPrefix(upper, "DMA"):
			model = peripherals.NewDMA(s.host, s.reg, s.log)
		case strings.HasPrefix(upper, "SPI"):
			model = peripherals.NewSPI(byteDevices[name])
		case strings.HasPrefix(upper, "USART") || strings.HasPrefix(upper, "UART"):
			model = peripherals.NewUSART(byteDevices[name])
		case strings.HasPrefix(upper, "FSMC") || strings.HasPrefix(upper, "FMC"):
			if fsmc == nil {
				fsmc = peripherals.NewFSMC()
			}
			model = fsmc
			// FSMC claims the unified data-bank range rather than its SVD
			// register-block range, per spec.md §4.2.
			start = 0x60000000
			end = 0xA0001000
		case strings.HasPrefix(upper, "I2C"):
			model = peripherals.NewI2C()
		default:
			model = peripherals.Unmodeled{}
		}

		s.reg.Register(name, start, end, model, p.Registers)
	}

	if fsmc != nil {
		for name, dev := range memDevices {
			bank := fsmcBankForPeripheral(name)
			if bank == 0 {
				s.log.Warnf("system: mem-mapped device %q has no recognizable FSMC bank suffix, binding bank 1", name)
				bank = 1
			}
			fsmc.Bind(bank, dev)
		}
	}

	return nil
}

// fsmcBankForPeripheral extracts a trailing "BANK<n>" suffix from a
// peripheral binding name such as "FSMC.BANK1", per spec.md §3's example.
func fsmcBankForPeripheral(name string) int {
	idx := strings.LastIndex(strings.ToUpper(name), "BANK")
	if idx < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(name[idx+4:], "%d", &n); err != nil {
		return 0
	}
	return n
}

// registerMMIO installs the router as the MMIO handler for every
// registered peripheral range, per spec.md §4.9 step 4.
func (s *System) registerMMIO(dev *svd.Device) error {
	ranges := map[[2]uint32]bool{}
	for _, p := range dev.Peripherals {
		e, ok := s.reg.ByName(p.Name)
		if !ok {
			continue
		}
		key := [2]uint32{e.Start, e.End}
		if ranges[key] {
			continue
		}
		ranges[key] = true
		start, end := e.Start, e.End
		if err := s.host.HookAddMMIO(uint64(start), uint64(end-start), func(write bool, addr uint64, size int, value uint64) uint64 {
			if write {
				s.rtr.Write(uint32(addr), size, uint32(value))
				return 0
			}
			return uint64(s.rtr.Read(uint32(addr), size))
		}); err != nil {
			return fmt.Errorf("system: hook mmio for %q: %w", p.Name, err)
		}
	}
	return nil
}

// registerHooks installs the code, interrupt, and memory-fault hooks of
// spec.md §4.9 steps 5-7.
func (s *System) registerHooks() error {
	if err := s.host.HookAddCode(0, 0xFFFFFFFF, s.onCode); err != nil {
		return fmt.Errorf("system: hook code: %w", err)
	}
	if err := s.host.HookAddInterrupt(s.onInterrupt); err != nil {
		return fmt.Errorf("system: hook interrupt: %w", err)
	}
	if err := s.host.HookAddMemFault(s.onMemFault); err != nil {
		return fmt.Errorf("system: hook mem fault: %w", err)
	}
	return nil
}

// onCode implements spec.md §4.9 step 5.
func (s *System) onCode(pc uint64, size uint32) {
	if s.opts.BusyLoopStop && uint32(pc) == s.lastPC {
		s.stopRequested = true
		_ = s.host.Stop()
	}
	s.lastPC = uint32(pc)

	tracelog.AddInstructions(1)
	tracelog.PublishLastInstruction(uint32(pc), size)
	s.instructionTick++

	s.irqc.Tick(tracelog.InstructionCount())

	if s.instructionTick%PumpEventInstInterval == 0 {
		for _, p := range s.presenters {
			if p.backend.QuitRequested() {
				s.stopRequested = true
				_ = s.host.Stop()
			}
		}
	}
}

// onInterrupt implements spec.md §4.9 step 6.
func (s *System) onInterrupt(intno uint32) {
	switch intno {
	case EXCExceptionExit:
		s.irqc.HandleExceptionExit()
	default:
		s.log.Fatalf("system: unknown CPU exception code %d", intno)
	}
}

// onMemFault implements spec.md §4.9 step 7: log, advance PC past the
// faulting instruction preserving the Thumb bit, and arm continueExecution
// for the outer loop.
func (s *System) onMemFault(write bool, addr uint64, size int) bool {
	s.log.Warnf("unmapped %s access at 0x%x (size %d)", accessKind(write), addr, size)

	pc, instrSize := tracelog.LastInstruction()
	nextPC := uint64(pc) + uint64(instrSize)
	nextPC |= uint64(pc) & 1 // preserve the Thumb bit

	s.resumePC = nextPC
	s.continueExecution = true
	return true
}

func accessKind(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

// Run drives the outer emulation loop of spec.md §4.9/§5 until a stop
// condition is reached, starting execution at entryPC.
func (s *System) Run(entryPC uint64) error {
	pc := entryPC
	remaining := s.opts.MaxInstructions

	for !s.stopRequested {
		s.continueExecution = false

		maxInsn := uint64(0)
		if s.opts.MaxInstructions != 0 {
			maxInsn = remaining
		}

		if err := s.host.Start(pc, s.opts.StopAddr, 0, maxInsn); err != nil {
			return fmt.Errorf("system: cpu start: %w", err)
		}

		curPC, err := s.host.RegRead(cpuhost.RegPC)
		if err != nil {
			return fmt.Errorf("system: read pc: %w", err)
		}

		if s.continueExecution {
			pc = s.resumePC
		} else {
			pc = curPC
		}

		if s.opts.StopAddr != 0 && curPC == s.opts.StopAddr {
			break
		}
		if s.opts.MaxInstructions != 0 {
			used := tracelog.InstructionCount()
			if used >= s.opts.MaxInstructions {
				break
			}
			remaining = s.opts.MaxInstructions - used
		}
	}

	return s.shutdown()
}

// shutdown implements spec.md §4.9's post-run steps: optional stack dump,
// then closing every framebuffer backend (which flushes image backends to
// disk).
func (s *System) shutdown() error {
	if s.opts.DumpStackWords > 0 {
		s.dumpStack(s.opts.DumpStackWords)
	}

	for _, p := range s.usartProbes {
		_ = p.Close()
	}

	for _, fb := range s.framebuffers {
		if err := fb.Close(); err != nil {
			s.log.Warnf("system: closing framebuffer: %v", err)
		}
	}
	return nil
}

func (s *System) dumpStack(words int) {
	sp, err := s.host.RegRead(cpuhost.RegSP)
	if err != nil {
		s.log.Warnf("system: dump stack: read SP: %v", err)
		return
	}
	for i := 0; i < words; i++ {
		addr := sp + uint64(i*4)
		b, err := s.host.MemRead(addr, 4)
		if err != nil {
			s.log.Warnf("system: dump stack: read 0x%x: %v", addr, err)
			return
		}
		v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		s.log.Infof("stack[0x%08x] = 0x%08x", addr, v)
	}
}

// StartPresentations opens every presentation backend's window before Run
// begins, so the first frame is visible immediately.
func (s *System) StartPresentations() error {
	for _, p := range s.presenters {
		if err := p.backend.Start(); err != nil {
			return fmt.Errorf("system: start presentation backend: %w", err)
		}
	}
	return nil
}
