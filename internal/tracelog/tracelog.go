// Package tracelog provides the fixed-prefix leveled logging the emulator
// uses everywhere: every record carries the current instruction count and
// program counter ahead of the message, mirroring the way the teacher
// codebase (audio_chip.go, terminal_host.go) wraps the stdlib log package
// instead of reaching for a third-party logging library.
package tracelog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"golang.org/x/term"
)

// Level is the verbosity level selected by repeated -v flags.
type Level int

const (
	Info Level = iota
	Debug
	Trace
)

// Color controls ANSI color emission, selectable via -c/--color.
type Color int

const (
	ColorAuto Color = iota
	ColorAlways
	ColorNever
)

// Clock is the minimal view of the instruction counter/last-instruction
// pair a Logger needs to stamp records. internal/irq.Controller implements it.
type Clock interface {
	InstructionCount() uint64
	LastPC() uint32
}

// Logger is the process-wide structured logger.
type Logger struct {
	level Level
	color bool
	out   *log.Logger
	clock Clock
}

// New builds a Logger writing to w at the given verbosity. color selects
// ANSI highlighting; ColorAuto enables it only when w is a terminal.
func New(w io.Writer, level Level, color Color) *Logger {
	enable := false
	switch color {
	case ColorAlways:
		enable = true
	case ColorNever:
		enable = false
	case ColorAuto:
		if f, ok := w.(*os.File); ok {
			enable = term.IsTerminal(int(f.Fd()))
		}
	}
	return &Logger{
		level: level,
		color: enable,
		out:   log.New(w, "", 0),
	}
}

// BindClock attaches the instruction-counter/PC source used for record
// prefixes. Safe to call once during system assembly.
func (l *Logger) BindClock(c Clock) { l.clock = c }

func (l *Logger) prefix() string {
	var tsc uint64
	var pc uint32
	if l.clock != nil {
		tsc = l.clock.InstructionCount()
		pc = l.clock.LastPC()
	}
	if l.color {
		return fmt.Sprintf("\033[38;5;244mtsc=%d pc=0x%08x\033[0m ", tsc, pc)
	}
	return fmt.Sprintf("tsc=%d pc=0x%08x ", tsc, pc)
}

func (l *Logger) emit(level Level, tag, format string, args ...any) {
	if level > l.level {
		return
	}
	l.out.Printf("%s%s: %s", l.prefix(), tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any)  { l.emit(Info, "info", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.emit(Debug, "debug", format, args...) }
func (l *Logger) Tracef(format string, args ...any) { l.emit(Trace, "trace", format, args...) }

// Warnf always logs regardless of level, matching spec.md §7's treatment
// of recoverable runtime faults (unmapped access, DMA memory failures).
func (l *Logger) Warnf(format string, args ...any) {
	l.out.Printf("%swarn: %s", l.prefix(), fmt.Sprintf(format, args...))
}

// Fatalf logs and exits the process, used for the non-recoverable error
// classes of spec.md §7 (invalid interrupt stack, unknown exception code,
// configuration errors detected outside startup validation).
func (l *Logger) Fatalf(format string, args ...any) {
	l.out.Printf("%sfatal: %s", l.prefix(), fmt.Sprintf(format, args...))
	os.Exit(1)
}

// instructionCount and lastInstruction are the process-wide globals of
// spec.md §5/§9: updated only from the single-threaded CPU-host code hook,
// but read from logging and debug call sites on the same goroutine stack as
// well as from hook bodies re-entered by the CPU host — published with
// atomic acquire/release semantics per the concurrency model.
var (
	instructionCount uint64
	lastInstruction  uint64 // packed (pc uint32, size uint32)
)

// AddInstructions bumps the global instruction counter, called once per
// executed instruction from the code hook.
func AddInstructions(n uint64) {
	atomic.AddUint64(&instructionCount, n)
}

// InstructionCount returns the current global instruction counter.
func InstructionCount() uint64 {
	return atomic.LoadUint64(&instructionCount)
}

// PublishLastInstruction records the most recently executed instruction's
// PC and size, per spec.md §3's LAST_INSTRUCTION tuple.
func PublishLastInstruction(pc, size uint32) {
	atomic.StoreUint64(&lastInstruction, uint64(pc)<<32|uint64(size))
}

// LastInstruction returns the most recently published (pc, size) pair.
func LastInstruction() (pc, size uint32) {
	v := atomic.LoadUint64(&lastInstruction)
	return uint32(v >> 32), uint32(v)
}
