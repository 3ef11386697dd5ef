package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/apm32sdk/usbotg/host"
	hcdc "github.com/apm32sdk/usbotg/host/class/cdc"
	hhid "github.com/apm32sdk/usbotg/host/class/hid"
	hmsc "github.com/apm32sdk/usbotg/host/class/msc"
	"github.com/apm32sdk/usbotg/internal/sim"
)

type traceOptions struct {
	kind   string
	output string
	text   bool
	frames int
}

func newTraceCommand(g *globalOptions) *cobra.Command {
	o := traceOptions{kind: kindMSC, frames: 100}
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Record the transactions of an enumeration as CBOR",
		Long: "trace enumerates a simulated device, lets the host class run for --frames frames " +
			"and writes every transaction the host port carried.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fn, err := ramFunction(o.kind)
			if err != nil {
				return err
			}
			bus, err := settle(cmd.Context(), g, fn, o.frames)
			if err != nil {
				return err
			}
			tr := bus.Trace()
			log.WithFields(log.Fields{"transactions": tr.Len(), "frames": bus.Steps()}).Info("trace recorded")
			return writeOutput(cmd.OutOrStdout(), o.output, func(w io.Writer) error {
				if o.text {
					_, err := tr.WriteTo(w)
					return err
				}
				b, err := tr.Encode()
				if err != nil {
					return err
				}
				_, err = w.Write(b)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.kind, "device", "d", o.kind, "device to attach: "+strings.Join(kinds, ", "))
	f.StringVarP(&o.output, "output", "o", "", "output `file` (default: stdout)")
	f.BoolVar(&o.text, "text", false, "write one line per transaction instead of CBOR")
	f.IntVar(&o.frames, "frames", o.frames, "frames to run after enumeration")

	cmd.AddCommand(&cobra.Command{
		Use:   "show FILE",
		Short: "Print a CBOR trace one line per transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read trace")
			}
			tr, err := sim.DecodeTrace(b)
			if err != nil {
				return err
			}
			_, err = tr.WriteTo(cmd.OutOrStdout())
			return err
		},
	})
	return cmd
}

// hostClass returns the host class driver for a device kind.
func hostClass(kind string) host.Class {
	switch kind {
	case kindMSC:
		return hmsc.New()
	case kindKeyboard, kindMouse:
		return hhid.New()
	case kindCDC:
		return hcdc.New()
	default:
		return sim.NewScript()
	}
}

// settle enumerates fn with its host class and runs frames more frames.
func settle(ctx context.Context, g *globalOptions, fn *function, frames int) (*sim.Bus, error) {
	bus := g.newBus(hostClass(fn.kind), fn)
	if err := bus.Enumerate(ctx); err != nil {
		return nil, err
	}
	if err := bus.Run(ctx, frames); err != nil {
		return nil, err
	}
	return bus, nil
}

// writeOutput runs fn on path, or on stdout when path is empty.
func writeOutput(stdout io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close output")
}
