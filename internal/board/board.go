// Package board brings up the HPM of a machine for the command line tools,
// either from its device tree, from explicit addresses, over I2C or on a
// simulated bus.
package board

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/soypat/spmi"
	"github.com/soypat/spmi/devtree"
	"github.com/soypat/spmi/hpm"
	"github.com/soypat/spmi/spmitest"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// HPMCompatible is the compatible string of HPMs on the SPMI bus.
const HPMCompatible = "usbc,sn201202x,spmi"

type SetupConfig struct {
	// DTB is the flattened device tree to look the HPM up in.
	DTB string
	// Node is the device tree path of the HPM. If empty the first node
	// compatible with HPMCompatible is used.
	Node string
	// Base is the physical address of the SPMI controller. Used with Addr
	// when DTB is empty.
	Base uint64
	// Addr is the SPMI slave address of the HPM.
	Addr uint
	// I2CBus selects the I2C transport on the named bus.
	I2CBus string
	// I2CAddr is the I2C address of the HPM.
	I2CAddr uint
	// Sim runs against a simulated controller and HPM.
	Sim    bool
	Logger *slog.Logger
}

// RegisterFlags registers the setup flags in fs.
func (cfg *SetupConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&cfg.DTB, "dtb", "/sys/firmware/fdt", "Flattened device tree blob to look up the HPM in.")
	fs.StringVar(&cfg.Node, "node", "", "Device tree path of the HPM. Defaults to the first node compatible with "+HPMCompatible+".")
	fs.Uint64Var(&cfg.Base, "base", 0, "Physical address of the SPMI controller. Overrides -dtb.")
	fs.UintVar(&cfg.Addr, "addr", 0xe, "SPMI slave address of the HPM when -base is used.")
	fs.StringVar(&cfg.I2CBus, "i2c", "", "Use the I2C transport on this bus instead of SPMI.")
	fs.UintVar(&cfg.I2CAddr, "i2c-addr", 0x38, "I2C address of the HPM.")
	fs.BoolVar(&cfg.Sim, "sim", false, "Run against a simulated SPMI controller and HPM.")
}

// Board holds the handles opened by Setup.
type Board struct {
	HPM *hpm.Dev
	// Bus is nil for the I2C transport.
	Bus *spmi.Dev
	// Name identifies the HPM in logs and telemetry.
	Name string
	// Sim is the simulated device when running with SetupConfig.Sim.
	Sim *spmitest.HPM

	closers []io.Closer
}

// Setup opens the bus described by cfg and initializes the HPM on it.
func Setup(cfg SetupConfig) (*Board, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127), // Make temporary logger that does no logging.
		}))
	}
	hcfg := hpm.Config{Logger: logger}
	b := &Board{}
	var err error
	start := time.Now()
	switch {
	case cfg.Sim:
		b.Sim = spmitest.NewHPM()
		b.Sim.CommandPolls = 3
		addr := uint8(cfg.Addr)
		ctl := spmitest.NewController(map[uint8]spmitest.Slave{addr: b.Sim})
		b.Bus = spmi.Open(ctl, spmi.Config{Logger: logger, Delay: func(time.Duration) {}})
		hcfg.Delay = func(time.Duration) {}
		b.Name = fmt.Sprintf("sim-%d", addr)
		b.HPM, err = hpm.NewSPMI(b.Bus, addr, hcfg)

	case cfg.I2CBus != "":
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("periph host init: %w", err)
		}
		bus, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("opening i2c bus %q: %w", cfg.I2CBus, err)
		}
		b.closers = append(b.closers, bus)
		b.Name = fmt.Sprintf("i2c-%s-%#x", bus, cfg.I2CAddr)
		b.HPM = hpm.NewI2C(bus, uint16(cfg.I2CAddr), hcfg)

	case cfg.Base != 0:
		if err = b.openSPMI(cfg.Base, logger); err != nil {
			return nil, err
		}
		b.Name = fmt.Sprintf("spmi-%#x-%d", cfg.Base, cfg.Addr)
		b.HPM, err = hpm.NewSPMI(b.Bus, uint8(cfg.Addr), hcfg)

	default:
		tree, err := devtree.ReadFile(cfg.DTB)
		if err != nil {
			return nil, err
		}
		node := cfg.Node
		if node == "" {
			nodes := tree.Compatible(HPMCompatible)
			if len(nodes) == 0 {
				return nil, fmt.Errorf("%w: no %s node in %s", devtree.ErrDeviceNotFound, HPMCompatible, cfg.DTB)
			}
			node = nodes[0]
		}
		base, err := devtree.Address(tree, path.Dir(node))
		if err != nil {
			return nil, err
		}
		if err := b.openSPMI(base, logger); err != nil {
			return nil, err
		}
		b.Name = path.Base(node)
		b.HPM, err = hpm.NewFromDeviceTree(tree, node, b.Bus, hcfg)
		if err != nil {
			b.Close()
			return nil, err
		}
	}
	if err != nil {
		b.Close()
		return nil, err
	}
	logger.Info("board:setup", slog.String("hpm", b.Name), slog.Duration("duration", time.Since(start)))
	return b, nil
}

func (b *Board) openSPMI(base uint64, logger *slog.Logger) error {
	regs, err := spmi.MapPhysical(base)
	if err != nil {
		return fmt.Errorf("mapping spmi controller at %#x: %w", base, err)
	}
	b.Bus = spmi.Open(regs, spmi.Config{Logger: logger})
	b.closers = append(b.closers, b.Bus)
	return nil
}

// Close releases the HPM and the buses opened by Setup.
func (b *Board) Close() error {
	var errs []error
	if b.HPM != nil {
		errs = append(errs, b.HPM.Close())
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}
