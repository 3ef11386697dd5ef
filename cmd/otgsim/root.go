package main

import (
	"io"
	"log/slog"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/internal/sim"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/prof"
	"github.com/apm32sdk/usbotg/pkg/usbid"
)

// globalOptions are the flags every command shares.
type globalOptions struct {
	verbose    bool
	debug      bool
	steps      int
	usbIDs     string
	cpuProfile string
	memProfile string
}

func newRootCommand() *cobra.Command {
	var (
		g        globalOptions
		stopProf func() error
	)
	cmd := &cobra.Command{
		Use:           "otgsim",
		Short:         "Run the USB OTG engine on simulated cores",
		Long:          "otgsim attaches a simulated device to a simulated host port and drives both engines frame by frame.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd.ErrOrStderr(), g.verbose, g.debug)
			if g.cpuProfile == "" {
				return nil
			}
			stop, err := prof.StartCPU(g.cpuProfile)
			if err != nil {
				return err
			}
			stopProf = stop
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if stopProf != nil {
				if err := stopProf(); err != nil {
					return err
				}
			}
			if g.memProfile != "" {
				return prof.Write(prof.ProfileHeap, g.memProfile)
			}
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	f := cmd.PersistentFlags()
	f.BoolVarP(&g.verbose, "verbose", "v", false, "log engine events")
	f.BoolVar(&g.debug, "debug", false, "log every engine state change")
	f.IntVar(&g.steps, "steps", sim.DefaultMaxSteps, "frame budget of each bus operation")
	f.StringVar(&g.usbIDs, "usb-ids", "", "usb.ids database (default: search the system paths)")
	f.StringVar(&g.cpuProfile, "cpuprofile", "", "write a CPU profile to `file`")
	f.StringVar(&g.memProfile, "memprofile", "", "write a heap profile to `file` on exit")

	cmd.AddCommand(
		newEnumCommand(&g),
		newMSCCommand(&g),
		newHIDCommand(&g),
		newCDCCommand(&g),
		newTraceCommand(&g),
		newSnapshotCommand(&g),
	)
	return cmd
}

// setupLogging routes the engine's slog records through the apex CLI
// handler.
func setupLogging(w io.Writer, verbose, debug bool) {
	log.SetHandler(cli.New(w))
	log.SetLevel(log.DebugLevel)
	pkg.SetLogger(slog.New(pkg.NewApexHandler(log.Log, nil)))
	switch {
	case debug:
		pkg.SetLogLevel(slog.LevelDebug)
	case verbose:
		pkg.SetLogLevel(slog.LevelInfo)
	default:
		pkg.SetLogLevel(slog.LevelWarn)
	}
}

// newBus attaches fn to a fresh host port running hc.
func (g *globalOptions) newBus(hc host.Class, fn *function, opts ...sim.Option) *sim.Bus {
	opts = append([]sim.Option{sim.WithMaxSteps(g.steps)}, opts...)
	return sim.New(hc, nil, fn.desc, fn.class, nil, opts...)
}

// ids loads the usb.ids database. Without --usb-ids a missing database
// is not an error.
func (g *globalOptions) ids() (*usbid.Database, error) {
	if g.usbIDs != "" {
		return usbid.Open(g.usbIDs)
	}
	return usbid.Load()
}
