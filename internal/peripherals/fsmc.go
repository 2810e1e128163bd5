package peripherals

// NumFSMCBanks is the fixed bank count of spec.md §4.3 ("Four banks
// numbered 1..4").
const NumFSMCBanks = 4

const (
	fsmcBankSize     = 0x10000000 // 256 MiB per data bank
	fsmcDataSpan     = fsmcBankSize * NumFSMCBanks
	fsmcRegBankSpan  = 0x24 // 9 registers x 4 bytes per bank's register set
)

// MemMappedDevice is the wider-word external-device capability of spec.md
// §3/§4.4, used by FSMC-attached displays.
type MemMappedDevice interface {
	Read(offset uint32) uint32
	Write(offset uint32, value uint32)
}

// FSMC models the Flexible Static Memory Controller. Per spec.md §4.2 its
// registry slot covers the unified data-bank range [0x6000_0000,
// 0xA000_1000) rather than an SVD-declared register block, so offsets
// passed to Read/Write here are relative to 0x6000_0000: [0,
// fsmcDataSpan) addresses the four data banks, and
// [fsmcDataSpan, fsmcDataSpan+0x1000) addresses the bank control/timing
// registers.
type FSMC struct {
	banks [NumFSMCBanks]MemMappedDevice
}

// NewFSMC constructs an FSMC model with no banks bound; Bind attaches a
// device to a 1-based bank number.
func NewFSMC() *FSMC { return &FSMC{} }

// Bind attaches device to bank (1..4).
func (f *FSMC) Bind(bank int, device MemMappedDevice) {
	if bank < 1 || bank > NumFSMCBanks {
		return
	}
	f.banks[bank-1] = device
}

func (f *FSMC) decode(offset uint32) (bank int, bankOffset uint32, isData bool) {
	if offset < fsmcDataSpan {
		return int(offset / fsmcBankSize), offset % fsmcBankSize, true
	}
	return 0, offset - fsmcDataSpan, false
}

func (f *FSMC) Read(offset uint32) uint32 {
	bank, bankOffset, isData := f.decode(offset)
	if isData {
		dev := f.banks[bank]
		if dev == nil {
			return 0
		}
		// Data accesses pass the raw (unaligned) offset through, since the
		// display device encodes command-vs-data in a specific address
		// bit (spec.md §4.3's FSMC note, configured per display).
		return dev.Read(bankOffset)
	}
	// Register reads return 0 (spec.md §4.3: "Register reads return 0").
	return 0
}

func (f *FSMC) Write(offset uint32, value uint32) {
	bank, bankOffset, isData := f.decode(offset)
	if isData {
		dev := f.banks[bank]
		if dev == nil {
			return
		}
		dev.Write(bankOffset, value)
		return
	}
	// Register writes are traced only (spec.md §4.3); no state to keep.
}
