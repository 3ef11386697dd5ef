package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/apm32sdk/usbotg/device"
	dhid "github.com/apm32sdk/usbotg/device/class/hid"
	hhid "github.com/apm32sdk/usbotg/host/class/hid"
)

type hidOptions struct {
	kind    string
	text    string
	reports int
}

func newHIDCommand(g *globalOptions) *cobra.Command {
	o := hidOptions{kind: kindMouse, text: "hello", reports: 16}
	cmd := &cobra.Command{
		Use:   "hid",
		Short: "Poll input reports of a simulated keyboard or mouse",
		Long: "hid attaches a boot keyboard or mouse and prints every input report the host class receives. " +
			"The keyboard types --text; the mouse sweeps right and back for --reports reports.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHID(cmd.Context(), g, &o, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.kind, "device", "d", o.kind, "device to attach: keyboard or mouse")
	f.StringVar(&o.text, "text", o.text, "text the keyboard types")
	f.IntVarP(&o.reports, "reports", "n", o.reports, "number of mouse reports")
	return cmd
}

// hidSource produces the reports the simulated device sends.
type hidSource func(d *device.Device, fn *dhid.Class, i int) (bool, error)

func runHID(ctx context.Context, g *globalOptions, o *hidOptions, w io.Writer) error {
	if o.kind != kindKeyboard && o.kind != kindMouse {
		return errors.Errorf("hid device must be %s or %s", kindKeyboard, kindMouse)
	}
	fn, err := ramFunction(o.kind)
	if err != nil {
		return err
	}

	var (
		track hhid.Track
		hc    *hhid.Class
	)
	received := 0
	hc = hhid.New(hhid.WithReportHandler(func(r []byte) {
		received++
		line := fmt.Sprintf("%4d  %s", received, hex.EncodeToString(r))
		if o.kind == kindMouse {
			m := hc.Mouse()
			track.Move(m)
			line += "  " + track.Render(m)
		}
		fmt.Fprintln(w, line)
	}))

	bus := g.newBus(hc, fn)
	if err := bus.Enumerate(ctx); err != nil {
		return err
	}

	src := mouseSource(o.reports)
	if o.kind == kindKeyboard {
		src = keyboardSource([]rune(o.text))
	}
	for i := 0; ; i++ {
		more, err := src(bus.Device(), fn.hid, i)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		want := received + 1
		if err := bus.RunUntil(ctx, func() bool { return received >= want }); err != nil {
			return errors.Wrapf(err, "report %d", i)
		}
	}
}

// mouseSource moves right for the first half of n reports and left for
// the rest, pressing the left button at the turn.
func mouseSource(n int) hidSource {
	return func(d *device.Device, fn *dhid.Class, i int) (bool, error) {
		if i >= n {
			return false, nil
		}
		r := dhid.MouseReport{X: 4}
		if i >= n/2 {
			r.X = -4
		}
		if i == n/2 {
			r.Buttons = dhid.ButtonLeft
		}
		return true, fn.SendMouse(d, &r)
	}
}

// keyboardSource presses and releases one key per character of text.
func keyboardSource(text []rune) hidSource {
	return func(d *device.Device, fn *dhid.Class, i int) (bool, error) {
		if i >= 2*len(text) {
			return false, nil
		}
		var r dhid.KeyboardReport
		if i%2 == 0 {
			code, mods, ok := dhid.Keycode(text[i/2])
			if !ok {
				return false, errors.Errorf("no key for %q", text[i/2])
			}
			r.Modifiers = mods
			r.Press(code)
		}
		return true, fn.SendKeyboard(d, &r)
	}
}
