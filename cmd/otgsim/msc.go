package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	dmsc "github.com/apm32sdk/usbotg/device/class/msc"
	"github.com/apm32sdk/usbotg/host"
	hmsc "github.com/apm32sdk/usbotg/host/class/msc"
	"github.com/apm32sdk/usbotg/internal/sim"
	"github.com/apm32sdk/usbotg/pkg"
)

// chunkBlocks is the number of blocks moved per SCSI command.
const chunkBlocks = 8

type mscOptions struct {
	image    string
	blocks   uint64
	readOnly bool
}

// disk is a host mass storage session bound to a simulated disk.
type disk struct {
	g     *globalOptions
	bus   *sim.Bus
	hc    *hmsc.Class
	close func() error
}

func newMSCCommand(g *globalOptions) *cobra.Command {
	var o mscOptions
	cmd := &cobra.Command{
		Use:   "msc",
		Short: "Access a simulated disk through the host mass storage class",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&o.image, "image", "", "disk image `file` served by the device (default: RAM disk)")
	pf.Uint64Var(&o.blocks, "blocks", defaultBlocks, "RAM disk size in blocks")
	pf.BoolVar(&o.readOnly, "read-only", false, "serve the disk write protected")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Print the capacity of the disk",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				d, err := openDisk(cmd.Context(), g, &o)
				if err != nil {
					return err
				}
				defer d.close()
				info := d.hc.Info()
				fmt.Fprintf(cmd.OutOrStdout(), "blocks %d\nblock size %d\ncapacity %d\nwrite protected %t\nmax lun %d\n",
					info.BlockCount, info.BlockSize, info.Capacity(), info.WriteProtected, info.MaxLUN)
				return nil
			},
		},
		&cobra.Command{
			Use:   "read LBA [COUNT]",
			Short: "Read blocks and print a hex dump",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				lba, err := parseUint32(args[0], "lba")
				if err != nil {
					return err
				}
				count := uint32(1)
				if len(args) > 1 {
					if count, err = parseUint32(args[1], "count"); err != nil {
						return err
					}
				}
				d, err := openDisk(cmd.Context(), g, &o)
				if err != nil {
					return err
				}
				defer d.close()

				buf := make([]byte, int(count)*int(d.hc.Info().BlockSize))
				if err := d.transfer(cmd.Context(), lba, buf, d.hc.Read); err != nil {
					return err
				}
				dump := hex.Dumper(cmd.OutOrStdout())
				defer dump.Close()
				_, err = dump.Write(buf)
				return err
			},
		},
		&cobra.Command{
			Use:   "write LBA FILE",
			Short: "Write FILE to the disk, padded to whole blocks",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				lba, err := parseUint32(args[0], "lba")
				if err != nil {
					return err
				}
				data, err := os.ReadFile(args[1])
				if err != nil {
					return errors.Wrap(err, "read input")
				}
				d, err := openDisk(cmd.Context(), g, &o)
				if err != nil {
					return err
				}
				defer d.close()

				bs := int(d.hc.Info().BlockSize)
				buf := make([]byte, (len(data)+bs-1)/bs*bs)
				copy(buf, data)
				if err := d.transfer(cmd.Context(), lba, buf, d.hc.Write); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d blocks at lba %d\n", len(buf)/bs, lba)
				return nil
			},
		},
	)
	return cmd
}

// openDisk attaches a mass storage device and waits until the host class
// has read the capacity.
func openDisk(ctx context.Context, g *globalOptions, o *mscOptions) (*disk, error) {
	var (
		storage dmsc.Storage
		closer  = func() error { return nil }
	)
	if o.image != "" {
		fs, err := dmsc.OpenFileStorage(o.image, dmsc.DefaultBlockSize, o.readOnly)
		if err != nil {
			return nil, err
		}
		storage, closer = fs, fs.Close
	} else {
		mem := dmsc.NewMemoryStorage(o.blocks, dmsc.DefaultBlockSize)
		mem.SetReadOnly(o.readOnly)
		storage = mem
	}

	fn, err := newFunction(kindMSC, storage)
	if err != nil {
		closer()
		return nil, err
	}
	hc := hmsc.New()
	d := &disk{g: g, bus: g.newBus(hc, fn), hc: hc, close: closer}
	if err := d.bus.RunUntil(ctx, hc.Ready); err != nil {
		closer()
		return nil, errors.Wrap(err, "mass storage not ready")
	}
	info := hc.Info()
	log.WithFields(log.Fields{"blocks": info.BlockCount, "block_size": info.BlockSize}).Info("disk ready")
	return d, nil
}

// transfer moves buf starting at lba in chunks, polling op until each
// chunk completes.
func (d *disk) transfer(ctx context.Context, lba uint32, buf []byte, op func(*host.Host, uint32, []byte) hmsc.Status) error {
	bs := int(d.hc.Info().BlockSize)
	if uint64(lba)+uint64(len(buf)/bs) > uint64(d.hc.Info().BlockCount) {
		return errors.Wrapf(pkg.ErrInvalidParameter, "blocks %d..%d past end of disk", lba, int(lba)+len(buf)/bs-1)
	}
	for off := 0; off < len(buf); off += chunkBlocks * bs {
		chunk := buf[off:min(off+chunkBlocks*bs, len(buf))]
		at := lba + uint32(off/bs)
		if err := d.poll(ctx, func() hmsc.Status { return op(d.bus.Host(), at, chunk) }); err != nil {
			return errors.Wrapf(err, "lba %d", at)
		}
	}
	return nil
}

func (d *disk) poll(ctx context.Context, op func() hmsc.Status) error {
	for i := 0; i < d.g.steps; i++ {
		switch st := op(); st {
		case hmsc.StatusOK:
			return nil
		case hmsc.StatusBusy:
			if err := d.bus.Step(ctx); err != nil {
				return err
			}
		default:
			s := d.hc.Info().Sense
			return errors.Errorf("command %s, sense %02x/%02x/%02x", st, s.Key, s.ASC, s.ASCQ)
		}
	}
	return errors.Wrap(pkg.ErrTimeout, "command")
}

func parseUint32(s, what string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", what)
	}
	return uint32(v), nil
}
