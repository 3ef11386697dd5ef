package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/apm32sdk/usbotg/otg"
)

type snapshotOptions struct {
	kind   string
	core   string
	output string
	frames int
}

func newSnapshotCommand(g *globalOptions) *cobra.Command {
	o := snapshotOptions{kind: kindMSC, core: "host", frames: 100}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump the registers and FIFOs of a core as CBOR",
		Long:  "snapshot enumerates a simulated device and writes the state of the host or device core.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.core != "host" && o.core != "device" {
				return errors.Errorf("core must be host or device, not %q", o.core)
			}
			fn, err := ramFunction(o.kind)
			if err != nil {
				return err
			}
			bus, err := settle(cmd.Context(), g, fn, o.frames)
			if err != nil {
				return err
			}
			core := bus.HostCore()
			if o.core == "device" {
				core = bus.DeviceCore()
			}
			s := core.Snapshot()
			b, err := otg.EncodeSnapshot(s)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"core": o.core, "frame": s.Frame, "bytes": len(b)}).Info("snapshot taken")
			return writeOutput(cmd.OutOrStdout(), o.output, func(w io.Writer) error {
				_, err := w.Write(b)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.kind, "device", "d", o.kind, "device to attach: "+strings.Join(kinds, ", "))
	f.StringVar(&o.core, "core", o.core, "core to dump: host or device")
	f.StringVarP(&o.output, "output", "o", "", "output `file` (default: stdout)")
	f.IntVar(&o.frames, "frames", o.frames, "frames to run after enumeration")

	cmd.AddCommand(&cobra.Command{
		Use:   "show FILE",
		Short: "Print the global registers of a CBOR snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read snapshot")
			}
			s, err := otg.DecodeSnapshot(b)
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), &s)
			return nil
		},
	})
	return cmd
}

func printSnapshot(w io.Writer, s *otg.Snapshot) {
	g := &s.Regs.G
	fmt.Fprintf(w, "mode %s frame %d time %s\n", s.Mode, s.Frame, s.Time)
	fmt.Fprintf(w, "GCTRLSTS %08x\n", g.GCTRLSTS)
	fmt.Fprintf(w, "GAHBCFG  %08x\n", g.GAHBCFG)
	fmt.Fprintf(w, "GUSBCFG  %08x\n", g.GUSBCFG)
	fmt.Fprintf(w, "GCINT    %08x\n", g.GCINT)
	fmt.Fprintf(w, "GINTMASK %08x\n", g.GINTMASK)
	fmt.Fprintf(w, "GRXFIFO  %08x\n", g.GRXFIFO)
	fmt.Fprintf(w, "GCID     %08x\n", g.GCID)
	fmt.Fprintf(w, "rx queue %d entries\n", len(s.RxQueue))
}
