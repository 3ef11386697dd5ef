// Package usbid looks up vendor, product and class names in a usb.ids
// database, the text file maintained at linux-usb.org and shipped with
// usbutils.
//
//	db, err := usbid.Open("/usr/share/hwdata/usb.ids")
//	if err != nil {
//		return err
//	}
//	fmt.Println(db.Vendor(0x0483), db.Product(0x0483, 0x5720))
//
// Load searches DefaultPaths and is what the command-line tools use when no
// file is named. A missing database is not an error for lookups; every
// lookup on an empty database returns "".
package usbid
