package peripherals

// NVICFacade is the thin MMIO wrapper of spec.md §4.3: every concrete
// ISER/ICER/ISPR/IPR/... register reads 0 and every write is a no-op. All
// real pending-IRQ state lives in internal/irq.Controller, which the
// emulation loop drives directly rather than through this facade.
type NVICFacade struct{}

// NewNVICFacade constructs the facade.
func NewNVICFacade() *NVICFacade { return &NVICFacade{} }

func (n *NVICFacade) Read(offset uint32) uint32   { return 0 }
func (n *NVICFacade) Write(offset uint32, v uint32) {}
