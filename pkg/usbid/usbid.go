package usbid

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// DefaultPaths lists where distributions install the database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// section is the part of the file the parser is in.
type section uint8

const (
	sectionNone section = iota
	sectionVendor
	sectionClass
)

// Database holds the vendor, product and class names of one usb.ids file.
// It is safe for concurrent use.
type Database struct {
	mu         sync.RWMutex
	vendors    map[uint16]string
	products   map[uint32]string // vid<<16 | pid
	classes    map[uint8]string
	subclasses map[uint16]string // class<<8 | subclass
	path       string
}

// New returns an empty database.
func New() *Database {
	return &Database{
		vendors:    make(map[uint16]string),
		products:   make(map[uint32]string),
		classes:    make(map[uint8]string),
		subclasses: make(map[uint16]string),
	}
}

// Open parses the database at path.
func Open(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open usb.ids")
	}
	defer f.Close()

	db := New()
	if err := db.Parse(f); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	db.path = path
	return db, nil
}

// Load parses the first of paths that exists, or DefaultPaths when none
// are given. It returns an empty database and no error when no file is
// found.
func Load(paths ...string) (*Database, error) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, p := range paths {
		db, err := Open(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return db, err
	}
	return New(), nil
}

// Parse adds the entries read from r. Lines it does not understand are
// skipped.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	sc := bufio.NewScanner(r)
	sec := sectionNone
	var vid uint16
	var class uint8
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] != '\t' {
			sec = sectionNone
			if id, name, ok := entry(line, 4); ok {
				sec, vid = sectionVendor, uint16(id)
				db.vendors[vid] = name
			} else if strings.HasPrefix(line, "C ") {
				if id, name, ok := entry(line[2:], 2); ok {
					sec, class = sectionClass, uint8(id)
					db.classes[class] = name
				}
			}
			continue
		}

		// interfaces and protocols sit one tab deeper
		if strings.HasPrefix(line, "\t\t") {
			continue
		}
		switch sec {
		case sectionVendor:
			if id, name, ok := entry(line[1:], 4); ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
		case sectionClass:
			if id, name, ok := entry(line[1:], 2); ok {
				db.subclasses[uint16(class)<<8|uint16(id)] = name
			}
		}
	}
	return errors.Wrap(sc.Err(), "scan usb.ids")
}

// entry splits "xxxx  Name" where the id has digits hex digits.
func entry(line string, digits int) (uint64, string, bool) {
	if len(line) < digits+2 || line[digits] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:digits], 16, digits*4)
	if err != nil {
		return 0, "", false
	}
	return id, strings.TrimSpace(line[digits:]), true
}

// Path returns the file the database was read from, or "".
func (db *Database) Path() string { return db.path }

// Vendor returns the vendor name of vid.
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the name of product pid of vendor vid.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Class returns the name of a device or interface class code.
func (db *Database) Class(class uint8) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.classes[class]
}

// Subclass returns the name of subclass within class.
func (db *Database) Subclass(class, subclass uint8) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.subclasses[uint16(class)<<8|uint16(subclass)]
}

// Len returns the number of vendors and products known.
func (db *Database) Len() (vendors, products int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors), len(db.products)
}
