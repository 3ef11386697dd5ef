package main

import (
	"context"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	hcdc "github.com/apm32sdk/usbotg/host/class/cdc"
)

type cdcOptions struct {
	text string
	baud uint32
}

func newCDCCommand(g *globalOptions) *cobra.Command {
	o := cdcOptions{text: "hello", baud: hcdc.DefaultLineCoding.BaudRate}
	cmd := &cobra.Command{
		Use:   "cdc",
		Short: "Send text through a simulated virtual COM port",
		Long: "cdc attaches an echoing virtual COM port, sets the line coding to --baud 8N1, " +
			"sends --text over the bulk OUT endpoint and prints what comes back.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCDC(cmd.Context(), g, &o, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.text, "text", o.text, "text to send")
	f.Uint32Var(&o.baud, "baud", o.baud, "baud rate to set")
	return cmd
}

func runCDC(ctx context.Context, g *globalOptions, o *cdcOptions, w io.Writer) error {
	lc := hcdc.DefaultLineCoding
	lc.BaudRate = o.baud
	if !lc.Valid() {
		return errors.Errorf("invalid baud rate %d", o.baud)
	}
	fn, err := ramFunction(kindCDC)
	if err != nil {
		return err
	}
	hc := hcdc.New(hcdc.WithLineCoding(lc), hcdc.WithControlLines(true, true))
	bus := g.newBus(hc, fn)
	if err := bus.Enumerate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "line coding %s\n", hc.DeviceLineCoding())

	msg := []byte(o.text)
	if _, err := hc.Send(msg); err != nil {
		return err
	}
	if err := bus.RunUntil(ctx, func() bool { return hc.Buffered() >= len(msg) }); err != nil {
		return errors.Wrap(err, "echo")
	}
	echo := make([]byte, hc.Buffered())
	n := hc.Read(echo)
	log.WithFields(log.Fields{"sent": hc.Sent(), "received": hc.Received()}).Debug("cdc echo")
	fmt.Fprintf(w, "echo %q\n", echo[:n])
	return nil
}
