package peripherals

// RegisterInfo is the human-readable register metadata spec.md §3's
// "Generic Peripheral (debug)" keeps for traces: name plus offset.
type RegisterInfo struct {
	Name        string
	DisplayName string
	Offset      uint32
}

// Generic is the debug-only peripheral record paired with every concrete
// model in the registry: a name and an offset-to-metadata map, used purely
// for human-readable tracing (spec.md §3). It implements no register
// behavior of its own.
type Generic struct {
	Name      string
	Registers map[uint32]RegisterInfo
}

// NewGeneric builds a Generic record from an offset-ordered register list.
func NewGeneric(name string, regs []RegisterInfo) *Generic {
	m := make(map[uint32]RegisterInfo, len(regs))
	for _, r := range regs {
		m[r.Offset] = r
	}
	return &Generic{Name: name, Registers: m}
}

// Describe returns a human-readable "NAME.REG" label for a register
// offset, falling back to the bare peripheral name when the offset is not
// a known register.
func (g *Generic) Describe(offset uint32) string {
	if r, ok := g.Registers[offset]; ok {
		if r.DisplayName != "" {
			return g.Name + "." + r.DisplayName
		}
		return g.Name + "." + r.Name
	}
	return g.Name
}

// Unmodeled is the registry's fallback concrete model (spec.md §4.2:
// "instantiate the first matching concrete model") for any SVD peripheral
// with no dedicated model in this package — reads return 0, writes are
// dropped, matching the router's own out-of-range behavior so an
// unmodeled peripheral is indistinguishable from one with no slot at all.
type Unmodeled struct{}

func (Unmodeled) Read(offset uint32) uint32   { return 0 }
func (Unmodeled) Write(offset uint32, v uint32) {}
