package svd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSVD(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "device.svd")
	doc := `<?xml version="1.0"?><device><peripherals>` + body + `</peripherals></device>`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write svd: %v", err)
	}
	return path
}

func TestLoadBasicPeripheralAndRegister(t *testing.T) {
	path := writeSVD(t, `
		<peripheral>
			<name>RCC</name>
			<baseAddress>0x40023800</baseAddress>
			<registers>
				<register><name>CR</name><addressOffset>0x0</addressOffset></register>
				<register><name>CFGR</name><addressOffset>0x4</addressOffset></register>
			</registers>
		</peripheral>`)

	dev, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(dev.Peripherals) != 1 {
		t.Fatalf("len(Peripherals) = %d, want 1", len(dev.Peripherals))
	}
	p := dev.Peripherals[0]
	if p.Name != "RCC" || p.BaseAddress != 0x40023800 {
		t.Fatalf("peripheral = %+v, want RCC at 0x40023800", p)
	}
	if len(p.Registers) != 2 || p.Registers[1].Offset != 4 {
		t.Fatalf("registers = %+v", p.Registers)
	}
}

func TestLoadResolvesDerivedFrom(t *testing.T) {
	path := writeSVD(t, `
		<peripheral>
			<name>USART1</name>
			<baseAddress>0x40011000</baseAddress>
			<registers>
				<register><name>DR</name><addressOffset>0x4</addressOffset></register>
			</registers>
		</peripheral>
		<peripheral derivedFrom="USART1">
			<name>USART2</name>
			<baseAddress>0x40004400</baseAddress>
		</peripheral>`)

	dev, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var usart2 *Peripheral
	for i := range dev.Peripherals {
		if dev.Peripherals[i].Name == "USART2" {
			usart2 = &dev.Peripherals[i]
		}
	}
	if usart2 == nil {
		t.Fatal("USART2 not found")
	}
	if usart2.BaseAddress != 0x40004400 {
		t.Fatalf("USART2 base = 0x%x, want its own 0x40004400 (not inherited)", usart2.BaseAddress)
	}
	if len(usart2.Registers) != 1 || usart2.Registers[0].Name != "DR" {
		t.Fatalf("USART2 registers = %+v, want inherited [DR]", usart2.Registers)
	}
}

func TestLoadSortsByBaseAddress(t *testing.T) {
	path := writeSVD(t, `
		<peripheral><name>B</name><baseAddress>0x40020000</baseAddress><registers></registers></peripheral>
		<peripheral><name>A</name><baseAddress>0x40010000</baseAddress><registers></registers></peripheral>`)

	dev, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dev.Peripherals[0].Name != "A" || dev.Peripherals[1].Name != "B" {
		t.Fatalf("order = [%s,%s], want [A,B]", dev.Peripherals[0].Name, dev.Peripherals[1].Name)
	}
}

func TestLoadExpandsRegisterArray(t *testing.T) {
	path := writeSVD(t, `
		<peripheral>
			<name>DMA1</name>
			<baseAddress>0x40026000</baseAddress>
			<registers>
				<register>
					<name>S</name>
					<addressOffset>0x10</addressOffset>
					<dim>4</dim>
					<dimIncrement>0x18</dimIncrement>
				</register>
			</registers>
		</peripheral>`)

	dev, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	regs := dev.Peripherals[0].Registers
	if len(regs) != 4 {
		t.Fatalf("len(regs) = %d, want 4", len(regs))
	}
	if regs[0].Name != "S0" || regs[3].Name != "S3" {
		t.Fatalf("names = [%s..%s], want [S0..S3]", regs[0].Name, regs[3].Name)
	}
	if regs[3].Offset != 0x10+3*0x18 {
		t.Fatalf("regs[3].Offset = 0x%x, want 0x%x", regs[3].Offset, 0x10+3*0x18)
	}
}

func TestLoadExpandsCluster(t *testing.T) {
	path := writeSVD(t, `
		<peripheral>
			<name>TIM1</name>
			<baseAddress>0x40010000</baseAddress>
			<registers>
				<cluster>
					<name>CH</name>
					<addressOffset>0x20</addressOffset>
					<dim>2</dim>
					<dimIncrement>0x8</dimIncrement>
					<register><name>CCR</name><addressOffset>0x0</addressOffset></register>
				</cluster>
			</registers>
		</peripheral>`)

	dev, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	regs := dev.Peripherals[0].Registers
	if len(regs) != 2 {
		t.Fatalf("len(regs) = %d, want 2", len(regs))
	}
	if regs[0].Name != "CCR0" || regs[0].Offset != 0x20 {
		t.Fatalf("regs[0] = %+v, want {CCR0, 0x20}", regs[0])
	}
	if regs[1].Name != "CCR1" || regs[1].Offset != 0x28 {
		t.Fatalf("regs[1] = %+v, want {CCR1, 0x28}", regs[1])
	}
}

func TestLoadUnknownDerivedFromIsAnError(t *testing.T) {
	path := writeSVD(t, `
		<peripheral derivedFrom="NOPE">
			<name>USART2</name>
			<baseAddress>0x40004400</baseAddress>
		</peripheral>`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected an error for an unresolved derivedFrom, got nil")
	}
}
