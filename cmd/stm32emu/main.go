// Command stm32emu runs a configured STM32 peripheral emulation per
// spec.md §6's CLI surface. Grounded on main.go's flat flag-driven entry
// point, generalized from a fixed two-CPU-mode switch to the config-driven
// system.New/system.Run pipeline.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stm32emu/stm32emu/internal/config"
	"github.com/stm32emu/stm32emu/internal/cpuhost"
	"github.com/stm32emu/stm32emu/internal/system"
	"github.com/stm32emu/stm32emu/internal/tracelog"
)

// verboseFlag implements flag.Value so repeated -v/--verbose flags
// accumulate into a count (spec.md §6: "repeatable 0..4").
type verboseFlag int

func (v *verboseFlag) String() string   { return strconv.Itoa(int(*v)) }
func (v *verboseFlag) IsBoolFlag() bool { return true }
func (v *verboseFlag) Set(string) error {
	if *v < 4 {
		*v++
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("stm32emu", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: stm32emu [flags] <config.yaml>")
		fs.PrintDefaults()
	}

	var verbose verboseFlag
	fs.Var(&verbose, "v", "increase verbosity (repeatable, 0-4)")
	fs.Var(&verbose, "verbose", "increase verbosity (repeatable, 0-4)")

	var maxInstructions uint64
	fs.Uint64Var(&maxInstructions, "m", 0, "stop after N instructions (0 = unbounded)")
	fs.Uint64Var(&maxInstructions, "max-instructions", 0, "stop after N instructions (0 = unbounded)")

	var stopAddrStr string
	fs.StringVar(&stopAddrStr, "s", "", "stop when PC reaches this address (decimal or 0x-prefixed hex)")
	fs.StringVar(&stopAddrStr, "stop-addr", "", "stop when PC reaches this address (decimal or 0x-prefixed hex)")

	var busyLoopStop bool
	fs.BoolVar(&busyLoopStop, "b", false, "stop when PC stalls on itself")
	fs.BoolVar(&busyLoopStop, "busy-loop-stop", false, "stop when PC stalls on itself")

	var colorStr string
	fs.StringVar(&colorStr, "c", "auto", "color output: auto|always|never")
	fs.StringVar(&colorStr, "color", "auto", "color output: auto|always|never")

	var interruptPeriod uint64
	fs.Uint64Var(&interruptPeriod, "i", 1, "instructions between interrupt dispatch checks")
	fs.Uint64Var(&interruptPeriod, "interrupt-period", 1, "instructions between interrupt dispatch checks")

	var dumpStack int
	fs.IntVar(&dumpStack, "d", 0, "dump top N stack words after the run stops")
	fs.IntVar(&dumpStack, "dump-stack", 0, "dump top N stack words after the run stops")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	configPath := fs.Arg(0)

	stopAddr, err := parseAddr(stopAddrStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stm32emu: %v\n", err)
		return 2
	}

	color, err := parseColor(colorStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stm32emu: %v\n", err)
		return 2
	}

	level := tracelog.Info
	switch {
	case verbose >= 2:
		level = tracelog.Trace
	case verbose >= 1:
		level = tracelog.Debug
	}
	log := tracelog.New(os.Stderr, level, color)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warnf("%v", err)
		return 1
	}

	host, err := cpuhost.NewUnicornHost()
	if err != nil {
		log.Warnf("cpu host: %v", err)
		return 1
	}

	opts := system.Options{
		MaxInstructions: maxInstructions,
		StopAddr:        stopAddr,
		BusyLoopStop:    busyLoopStop,
		InterruptPeriod: interruptPeriod,
		DumpStackWords:  dumpStack,
	}

	sys, err := system.New(cfg, host, log, opts)
	if err != nil {
		log.Warnf("%v", err)
		return 1
	}

	entryPC, err := sys.EntryPoint()
	if err != nil {
		log.Warnf("%v", err)
		return 1
	}

	if err := sys.StartPresentations(); err != nil {
		log.Warnf("%v", err)
		return 1
	}

	if err := sys.Run(entryPC); err != nil {
		log.Warnf("%v", err)
		return 1
	}

	return 0
}

// parseAddr accepts a decimal or 0x-prefixed hex address, per spec.md §6.
func parseAddr(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid stop address %q: %w", s, err)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stop address %q: %w", s, err)
	}
	return v, nil
}

func parseColor(s string) (tracelog.Color, error) {
	switch s {
	case "auto":
		return tracelog.ColorAuto, nil
	case "always":
		return tracelog.ColorAlways, nil
	case "never":
		return tracelog.ColorNever, nil
	default:
		return 0, fmt.Errorf("invalid --color %q: want auto|always|never", s)
	}
}
