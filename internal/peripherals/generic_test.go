package peripherals

import "testing"

func TestGenericDescribeKnownAndUnknownRegister(t *testing.T) {
	g := NewGeneric("RCC", []RegisterInfo{
		{Name: "CR", DisplayName: "Control", Offset: 0},
		{Name: "CFGR", Offset: 8},
	})

	if got := g.Describe(0); got != "RCC.Control" {
		t.Fatalf("Describe(0) = %q, want RCC.Control", got)
	}
	if got := g.Describe(8); got != "RCC.CFGR" {
		t.Fatalf("Describe(8) = %q, want RCC.CFGR", got)
	}
	if got := g.Describe(4); got != "RCC" {
		t.Fatalf("Describe(unknown) = %q, want RCC", got)
	}
}

func TestUnmodeledReadsZeroAndDropsWrites(t *testing.T) {
	var u Unmodeled
	u.Write(0, 0xFFFFFFFF) // must not panic
	if got := u.Read(0); got != 0 {
		t.Fatalf("Read = 0x%x, want 0", got)
	}
}

func TestReadDMADefaultSlicesWordIntoBytes(t *testing.T) {
	p := newFakeWordPeripheral()
	p.words[0] = 0x44332211

	got := ReadDMADefault(p, 0, 4)
	want := []byte{0x11, 0x22, 0x33, 0x44}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = 0x%x, want 0x%x", i, got[i], want[i])
		}
	}
}

func TestWriteDMADefaultPreservesUntouchedBytes(t *testing.T) {
	p := newFakeWordPeripheral()
	p.words[0] = 0x11223344

	WriteDMADefault(p, 1, []byte{0xAA})

	if got := p.words[0]; got != 0x1122AA44 {
		t.Fatalf("word after partial DMA write = 0x%x, want 0x1122aa44", got)
	}
}
