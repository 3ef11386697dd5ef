package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/internal/sim"
	"github.com/apm32sdk/usbotg/pkg/usbid"
)

func newEnumCommand(g *globalOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "enum",
		Short: "Enumerate a simulated device and print its descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fn, err := ramFunction(kind)
			if err != nil {
				return err
			}
			db, err := g.ids()
			if err != nil {
				return err
			}
			bus := g.newBus(sim.NewScript(), fn)
			if err := bus.Enumerate(cmd.Context()); err != nil {
				return err
			}
			h := bus.Host()
			printDescriptors(cmd.OutOrStdout(), h.Address(), h.Speed().String(), h.Descriptors(), db)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "device", "d", kindMSC, "device to attach: "+strings.Join(kinds, ", "))
	return cmd
}

// classNames covers the classes the simulated devices use when the
// database has no entry.
var classNames = map[uint8]string{
	0x00: "(Defined at Interface level)",
	0x02: "Communications",
	0x03: "Human Interface Device",
	0x08: "Mass Storage",
	0x0A: "CDC Data",
	0xEF: "Miscellaneous Device",
}

func className(db *usbid.Database, class uint8) string {
	if s := db.Class(class); s != "" {
		return s
	}
	return classNames[class]
}

var endpointTypes = [4]string{"Control", "Isochronous", "Bulk", "Interrupt"}

// printDescriptors writes the descriptors in the layout of lsusb -v.
func printDescriptors(w io.Writer, addr uint8, speed string, d *host.Descriptors, db *usbid.Database) {
	dev := &d.Device
	vendor := db.Vendor(dev.VendorID)
	product := db.Product(dev.VendorID, dev.ProductID)
	fmt.Fprintf(w, "Device %03d: ID %04x:%04x %s %s (%s speed)\n", addr, dev.VendorID, dev.ProductID, vendor, product, speed)

	fmt.Fprintln(w, "Device Descriptor:")
	fmt.Fprintf(w, "  bcdUSB             %2x.%02x\n", dev.USBVersion>>8, dev.USBVersion&0xFF)
	fmt.Fprintf(w, "  bDeviceClass       %5d %s\n", dev.DeviceClass, className(db, dev.DeviceClass))
	fmt.Fprintf(w, "  bDeviceSubClass    %5d %s\n", dev.DeviceSubClass, db.Subclass(dev.DeviceClass, dev.DeviceSubClass))
	fmt.Fprintf(w, "  bDeviceProtocol    %5d\n", dev.DeviceProtocol)
	fmt.Fprintf(w, "  bMaxPacketSize0    %5d\n", dev.MaxPacketSize0)
	fmt.Fprintf(w, "  idVendor          0x%04x %s\n", dev.VendorID, vendor)
	fmt.Fprintf(w, "  idProduct         0x%04x %s\n", dev.ProductID, product)
	fmt.Fprintf(w, "  bcdDevice          %2x.%02x\n", dev.DeviceVersion>>8, dev.DeviceVersion&0xFF)
	fmt.Fprintf(w, "  iManufacturer      %5d %s\n", dev.ManufacturerIndex, d.Manufacturer)
	fmt.Fprintf(w, "  iProduct           %5d %s\n", dev.ProductIndex, d.Product)
	fmt.Fprintf(w, "  iSerial            %5d %s\n", dev.SerialNumberIndex, d.SerialNumber)
	fmt.Fprintf(w, "  bNumConfigurations %5d\n", dev.NumConfigurations)

	cfg := &d.Configuration
	fmt.Fprintln(w, "  Configuration Descriptor:")
	fmt.Fprintf(w, "    wTotalLength       0x%04x\n", cfg.TotalLength)
	fmt.Fprintf(w, "    bNumInterfaces     %5d\n", cfg.NumInterfaces)
	fmt.Fprintf(w, "    bConfigurationValue %4d\n", cfg.ConfigurationValue)
	fmt.Fprintf(w, "    bmAttributes         0x%02x\n", cfg.Attributes)
	fmt.Fprintf(w, "    MaxPower           %5dmA\n", int(cfg.MaxPower)*2)

	for i := 0; i < d.NumInterfaces; i++ {
		itf := d.Interface(i)
		id := &itf.Descriptor
		fmt.Fprintln(w, "    Interface Descriptor:")
		fmt.Fprintf(w, "      bInterfaceNumber   %5d\n", id.InterfaceNumber)
		fmt.Fprintf(w, "      bAlternateSetting  %5d\n", id.AlternateSetting)
		fmt.Fprintf(w, "      bNumEndpoints      %5d\n", id.NumEndpoints)
		fmt.Fprintf(w, "      bInterfaceClass    %5d %s\n", id.InterfaceClass, className(db, id.InterfaceClass))
		fmt.Fprintf(w, "      bInterfaceSubClass %5d %s\n", id.InterfaceSubClass, db.Subclass(id.InterfaceClass, id.InterfaceSubClass))
		fmt.Fprintf(w, "      bInterfaceProtocol %5d\n", id.InterfaceProtocol)
		for j := 0; j < itf.NumEndpoints; j++ {
			ep := &itf.Endpoints[j]
			dir := "OUT"
			if ep.EndpointAddress&0x80 != 0 {
				dir = "IN"
			}
			fmt.Fprintln(w, "      Endpoint Descriptor:")
			fmt.Fprintf(w, "        bEndpointAddress    0x%02x  EP %d %s\n", ep.EndpointAddress, ep.EndpointAddress&0x0F, dir)
			fmt.Fprintf(w, "        bmAttributes       %5d %s\n", ep.Attributes, endpointTypes[ep.Attributes&0x03])
			fmt.Fprintf(w, "        wMaxPacketSize    0x%04x\n", ep.MaxPacketSize)
			fmt.Fprintf(w, "        bInterval          %5d\n", ep.Interval)
		}
	}
}
