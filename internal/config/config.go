// Package config decodes and validates the emulator's YAML configuration
// file (spec.md §6). gopkg.in/yaml.v3 is used for decoding — carried into
// this repo's dependency set from the retrieval pack's zboralski-galago
// emulator, which depends on it directly for the same purpose.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration tree, immutable once loaded
// (spec.md §3).
type Config struct {
	CPU          CPUConfig           `yaml:"cpu"`
	Regions      []Region            `yaml:"regions"`
	Patches      []Patch             `yaml:"patches"`
	Peripherals  PeripheralsConfig   `yaml:"peripherals"`
	Devices      DevicesConfig       `yaml:"devices"`
	Framebuffers []FramebufferConfig `yaml:"framebuffers"`
}

type CPUConfig struct {
	SVD          string `yaml:"svd"`
	VectorTable  uint32 `yaml:"vector_table"`
}

type Region struct {
	Name string `yaml:"name"`
	Start uint32 `yaml:"start"`
	Size  uint32 `yaml:"size"`
	Load  string `yaml:"load"`
}

type Patch struct {
	Start uint32 `yaml:"start"`
	Data  []byte `yaml:"data"`
}

type PeripheralsConfig struct {
	SoftwareSPI []SoftwareSPI `yaml:"software_spi"`
}

type SoftwareSPI struct {
	Name string `yaml:"name"`
	CS   string `yaml:"cs"`
	CLK  string `yaml:"clk"`
	MISO string `yaml:"miso"`
	MOSI string `yaml:"mosi"`
}

type DevicesConfig struct {
	SPIFlash    []SPIFlashConfig    `yaml:"spi_flash"`
	USARTProbe  []USARTProbeConfig  `yaml:"usart_probe"`
	Display     []DisplayConfig     `yaml:"display"`
	LCD         []LCDConfig         `yaml:"lcd"`
	Touchscreen []TouchscreenConfig `yaml:"touchscreen"`
}

type SPIFlashConfig struct {
	Peripheral string `yaml:"peripheral"`
	JEDECID    uint32 `yaml:"jedec_id"`
	File       string `yaml:"file"`
	Size       uint32 `yaml:"size"`
}

type USARTProbeConfig struct {
	Peripheral string `yaml:"peripheral"`
}

type DisplayReply struct {
	Cmd  byte     `yaml:"cmd"`
	Data []uint16 `yaml:"data"`
}

type DisplayConfig struct {
	Peripheral  string         `yaml:"peripheral"`
	CmdAddrBit  uint32         `yaml:"cmd_addr_bit"`
	SwapBytes   bool           `yaml:"swap_bytes"`
	Framebuffer string         `yaml:"framebuffer"`
	Replies     []DisplayReply `yaml:"replies"`
}

type LCDConfig struct {
	Peripheral  string `yaml:"peripheral"`
	Framebuffer string `yaml:"framebuffer"`
}

type TouchscreenConfig struct {
	Peripheral       string `yaml:"peripheral"`
	Framebuffer      string `yaml:"framebuffer"`
	FlipX            bool   `yaml:"flip_x"`
	FlipY            bool   `yaml:"flip_y"`
	SwapXY           bool   `yaml:"swap_x_y"`
	TouchDetectedPin string `yaml:"touch_detected_pin"`
	ScaleDown        uint32 `yaml:"scale_down"`
}

type FramebufferImage struct {
	File string `yaml:"file"`
}

type FramebufferConfig struct {
	Name      string            `yaml:"name"`
	Width     uint32            `yaml:"width"`
	Height    uint32            `yaml:"height"`
	Mode      string            `yaml:"mode"`
	Image     *FramebufferImage `yaml:"image"`
	SDL       bool              `yaml:"sdl"`
	Downscale uint32            `yaml:"downscale"`
}

// Load reads and validates a configuration file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// validate implements the configuration-error class of spec.md §7: missing
// references and duplicate names are fatal at load time rather than
// surfacing later as nil-pointer surprises during system assembly.
func (c *Config) validate() error {
	if c.CPU.SVD == "" {
		return fmt.Errorf("cpu.svd is required")
	}

	seenRegions := map[string]bool{}
	for _, r := range c.Regions {
		if seenRegions[r.Name] {
			return fmt.Errorf("duplicate region name %q", r.Name)
		}
		seenRegions[r.Name] = true
	}

	fbNames := map[string]bool{}
	for _, fb := range c.Framebuffers {
		if fb.Width == 0 || fb.Height == 0 {
			return fmt.Errorf("framebuffer %q: width/height must be nonzero", fb.Name)
		}
		switch fb.Mode {
		case "rgb565", "rgb888", "gray8":
		default:
			return fmt.Errorf("framebuffer %q: unknown mode %q", fb.Name, fb.Mode)
		}
		fbNames[fb.Name] = true
	}

	checkFB := func(kind, name string) error {
		if name != "" && !fbNames[name] {
			return fmt.Errorf("%s references unknown framebuffer %q", kind, name)
		}
		return nil
	}
	for _, d := range c.Devices.Display {
		if err := checkFB("display."+d.Peripheral, d.Framebuffer); err != nil {
			return err
		}
	}
	for _, d := range c.Devices.LCD {
		if err := checkFB("lcd."+d.Peripheral, d.Framebuffer); err != nil {
			return err
		}
	}
	for _, d := range c.Devices.Touchscreen {
		if err := checkFB("touchscreen."+d.Peripheral, d.Framebuffer); err != nil {
			return err
		}
	}

	return nil
}
