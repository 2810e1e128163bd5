// Package registry implements the Peripheral Registry of spec.md §4.2:
// recording one concrete peripheral model per SVD peripheral entry (the
// models are built by internal/system, derivedFrom is resolved by
// internal/svd), registering its address slot with the router, and keeping
// a parallel debug record for tracing. Grounded on
// machine_bus.go's registration pattern, generalized to take its input
// from an SVD device rather than hand-written Go constants.
package registry

import (
	"fmt"

	"github.com/stm32emu/stm32emu/internal/peripherals"
	"github.com/stm32emu/stm32emu/internal/router"
	"github.com/stm32emu/stm32emu/internal/svd"
)

// Entry pairs a constructed peripheral with its slot bounds and debug
// metadata, kept so PeripheralAt (used by the DMA engine) and tracing can
// find a peripheral by address or by name.
type Entry struct {
	Name    string
	Start   uint32
	End     uint32
	Model   peripherals.Peripheral
	Debug   *peripherals.Generic
}

// Registry is the Peripheral Registry of spec.md §4.2, and also satisfies
// internal/peripherals.PeripheralResolver for the DMA engine.
type Registry struct {
	entries []Entry
	byName  map[string]int // index into entries, not a pointer: entries keeps growing via append
	rtr     *router.Router
}

// New constructs an empty Registry bound to rtr, into which every
// registered peripheral's address slot is also added.
func New(rtr *router.Router) *Registry {
	return &Registry{byName: make(map[string]int), rtr: rtr}
}

// Register adds a concrete peripheral model covering [start, end) under
// name, with debug register metadata built from the SVD registers it was
// derived from. It registers the matching router slot immediately; call
// Finalize once after all peripherals (including the FSMC override, which
// is registered through Register with its fixed data-bank bounds) have been
// added.
func (r *Registry) Register(name string, start, end uint32, model peripherals.Peripheral, regs []svd.Register) {
	debugRegs := make([]peripherals.RegisterInfo, 0, len(regs))
	for _, reg := range regs {
		debugRegs = append(debugRegs, peripherals.RegisterInfo{
			Name: reg.Name, DisplayName: reg.DisplayName, Offset: reg.Offset,
		})
	}

	e := Entry{
		Name:  name,
		Start: start,
		End:   end,
		Model: model,
		Debug: peripherals.NewGeneric(name, debugRegs),
	}
	r.entries = append(r.entries, e)
	r.byName[name] = len(r.entries) - 1

	r.rtr.AddSlot(router.Slot{
		Start: start,
		End:   end,
		Read:  model.Read,
		Write: model.Write,
	})
}

// Finalize sorts and disjointness-checks the underlying router, per
// spec.md §4.2's "After registration, sort slots and assert disjointness."
func (r *Registry) Finalize() error {
	if err := r.rtr.Finalize(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	return nil
}

// ByName returns the registered peripheral entry for name (e.g. "SPI1"),
// used to resolve external-device bindings by peripheral name (spec.md
// §3's "External-Device Binding").
func (r *Registry) ByName(name string) (*Entry, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return &r.entries[i], true
}

// PeripheralAt locates the peripheral slot covering addr, implementing
// internal/peripherals.PeripheralResolver for the DMA engine (spec.md
// §4.6 step 1).
func (r *Registry) PeripheralAt(addr uint32) (peripherals.Peripheral, uint32, bool) {
	for i := range r.entries {
		e := &r.entries[i]
		if addr >= e.Start && addr < e.End {
			return e.Model, e.Start, true
		}
	}
	return nil, 0, false
}

// Describe returns a human-readable "NAME.REG" label for addr, for
// logging, or the raw address if nothing covers it.
func (r *Registry) Describe(addr uint32) string {
	if p, base, ok := r.PeripheralAt(addr); ok {
		_ = p
		for i := range r.entries {
			if r.entries[i].Start == base {
				return r.entries[i].Debug.Describe(addr - base)
			}
		}
	}
	return fmt.Sprintf("0x%08x", addr)
}
