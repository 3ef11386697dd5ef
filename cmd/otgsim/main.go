// Command otgsim runs the OTG host and device engines against each other on
// a pair of simulated cores.
//
//	otgsim enum --device cdc
//	otgsim msc read 0 4 --image disk.img
//	otgsim hid --device keyboard --text "hello"
//	otgsim cdc --baud 9600 --text "AT"
//	otgsim trace --device msc -o enum.cbor
//	otgsim snapshot --core device -o device.cbor
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.WithError(err).Error("otgsim")
		os.Exit(1)
	}
}
