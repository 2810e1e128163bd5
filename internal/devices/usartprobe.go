package devices

import (
	"os"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/stm32emu/stm32emu/internal/tracelog"
)

// USARTProbeConfig is the {peripheral} configuration of spec.md §4.4.
type USARTProbeConfig struct {
	Peripheral string
}

// USARTProbe implements ByteStreamDevice, logging accumulated lines from
// firmware writes and forwarding host stdin bytes back on reads, per
// spec.md §4.4. Non-blocking stdin is put in raw mode the way
// terminal_host.go's TerminalHost does, so a read never stalls the
// emulation loop.
type USARTProbe struct {
	log  *tracelog.Logger
	cfg  USARTProbeConfig
	line []byte

	fd           int
	nonblockSet  bool
	oldTermState *term.State
	once         sync.Once
}

// NewUSARTProbe constructs a probe bound to host stdin.
func NewUSARTProbe(log *tracelog.Logger, cfg USARTProbeConfig) *USARTProbe {
	return &USARTProbe{log: log, cfg: cfg}
}

// ConnectPeripheral implements spec.md §4.4's bind-time hook.
func (p *USARTProbe) ConnectPeripheral(name string) string { return "usartprobe:" + name }

// armStdin puts stdin into raw, non-blocking mode on first use, mirroring
// terminal_host.go's Start(). Errors are logged and treated as "no stdin
// available" rather than fatal, since a probe with no attached terminal
// (e.g. running under a test harness) is a normal configuration.
func (p *USARTProbe) armStdin() {
	p.once.Do(func() {
		p.fd = int(os.Stdin.Fd())
		oldState, err := term.MakeRaw(p.fd)
		if err != nil {
			p.log.Warnf("usartprobe: stdin is not a terminal, reads return 0: %v", err)
			return
		}
		p.oldTermState = oldState
		if err := syscall.SetNonblock(p.fd, true); err != nil {
			p.log.Warnf("usartprobe: failed to set nonblocking stdin: %v", err)
			_ = term.Restore(p.fd, p.oldTermState)
			p.oldTermState = nil
			return
		}
		p.nonblockSet = true
	})
}

// Write implements ByteStreamDevice, accumulating bytes until a newline
// and logging the trimmed line, per spec.md §4.4.
func (p *USARTProbe) Write(b byte) {
	if b == '\n' {
		p.log.Infof("usartprobe[%s]: %s", p.cfg.Peripheral, trimCR(p.line))
		p.line = p.line[:0]
		return
	}
	p.line = append(p.line, b)
}

func trimCR(line []byte) string {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return string(line[:n-1])
	}
	return string(line)
}

// Read implements ByteStreamDevice, returning one non-blocking byte from
// host stdin, or 0 if none is available, per spec.md §4.4.
func (p *USARTProbe) Read() byte {
	p.armStdin()
	if !p.nonblockSet {
		return 0
	}
	var buf [1]byte
	n, err := syscall.Read(p.fd, buf[:])
	if n == 1 && err == nil {
		return buf[0]
	}
	return 0
}

// Close restores the terminal to its original state, if it was altered.
func (p *USARTProbe) Close() error {
	if p.oldTermState != nil {
		err := term.Restore(p.fd, p.oldTermState)
		p.oldTermState = nil
		return err
	}
	return nil
}
