package msc

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/pkg"
)

// Storage errors.
var (
	// ErrOutOfRange indicates an access past the last block.
	ErrOutOfRange = errors.New("block address out of range")

	// ErrWriteProtected indicates a write to read-only storage.
	ErrWriteProtected = errors.New("storage is write protected")

	// ErrNoMedium indicates removable storage without a medium.
	ErrNoMedium = errors.New("medium not present")
)

// Storage is a block device behind the SCSI command set. len(buf) is a
// whole number of blocks for ReadBlocks and WriteBlocks.
type Storage interface {
	BlockSize() uint32
	BlockCount() uint64
	ReadBlocks(lba uint64, buf []byte) error
	WriteBlocks(lba uint64, buf []byte) error
	Sync() error
	ReadOnly() bool
	Removable() bool
	Present() bool
	// Eject removes the medium of removable storage.
	Eject() error
}

// checkRange validates an access of n bytes at lba.
func checkRange(s Storage, lba uint64, n int) error {
	bs := uint64(s.BlockSize())
	if uint64(n)%bs != 0 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "%d bytes is not a whole number of %d-byte blocks", n, bs)
	}
	if lba+uint64(n)/bs > s.BlockCount() {
		return errors.Wrapf(ErrOutOfRange, "lba %d + %d blocks", lba, uint64(n)/bs)
	}
	return nil
}

// MemoryStorage is a RAM disk.
type MemoryStorage struct {
	mu        sync.RWMutex
	data      []byte
	blockSize uint32
	readOnly  bool
	removable bool
	present   bool
}

// NewMemoryStorage returns a RAM disk of blocks blocks of blockSize bytes.
func NewMemoryStorage(blocks uint64, blockSize uint32) *MemoryStorage {
	return &MemoryStorage{
		data:      make([]byte, blocks*uint64(blockSize)),
		blockSize: blockSize,
		present:   true,
	}
}

// BlockSize returns the block size.
func (m *MemoryStorage) BlockSize() uint32 { return m.blockSize }

// BlockCount returns the number of blocks.
func (m *MemoryStorage) BlockCount() uint64 {
	return uint64(len(m.data)) / uint64(m.blockSize)
}

// Bytes returns the disk contents. The slice aliases the disk.
func (m *MemoryStorage) Bytes() []byte { return m.data }

// ReadBlocks copies blocks starting at lba into buf.
func (m *MemoryStorage) ReadBlocks(lba uint64, buf []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.present {
		return ErrNoMedium
	}
	if err := checkRange(m, lba, len(buf)); err != nil {
		return err
	}
	off := lba * uint64(m.blockSize)
	copy(buf, m.data[off:])
	return nil
}

// WriteBlocks copies buf to the blocks starting at lba.
func (m *MemoryStorage) WriteBlocks(lba uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.present:
		return ErrNoMedium
	case m.readOnly:
		return ErrWriteProtected
	}
	if err := checkRange(m, lba, len(buf)); err != nil {
		return err
	}
	off := lba * uint64(m.blockSize)
	copy(m.data[off:], buf)
	return nil
}

// Sync is a no-op.
func (m *MemoryStorage) Sync() error { return nil }

// ReadOnly reports whether writes are refused.
func (m *MemoryStorage) ReadOnly() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readOnly
}

// SetReadOnly sets the write protection.
func (m *MemoryStorage) SetReadOnly(ro bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = ro
}

// Removable reports whether the medium can be ejected.
func (m *MemoryStorage) Removable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.removable
}

// SetRemovable sets whether the medium can be ejected.
func (m *MemoryStorage) SetRemovable(r bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removable = r
}

// Present reports whether a medium is loaded.
func (m *MemoryStorage) Present() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.present
}

// SetPresent loads or removes the medium.
func (m *MemoryStorage) SetPresent(p bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.present = p
}

// Eject removes the medium of a removable disk.
func (m *MemoryStorage) Eject() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.removable {
		return errors.Wrap(pkg.ErrNotSupported, "medium is not removable")
	}
	m.present = false
	return nil
}

// FileStorage is a disk image file.
type FileStorage struct {
	mu        sync.Mutex
	file      *os.File
	blockSize uint32
	blocks    uint64
	readOnly  bool
}

// OpenFileStorage opens the image at path. The image size is rounded down
// to whole blocks.
func OpenFileStorage(path string, blockSize uint32, readOnly bool) (*FileStorage, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open disk image")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat disk image")
	}
	return &FileStorage{
		file:      f,
		blockSize: blockSize,
		blocks:    uint64(st.Size()) / uint64(blockSize),
		readOnly:  readOnly,
	}, nil
}

// BlockSize returns the block size.
func (f *FileStorage) BlockSize() uint32 { return f.blockSize }

// BlockCount returns the number of whole blocks in the image.
func (f *FileStorage) BlockCount() uint64 { return f.blocks }

// ReadBlocks reads blocks starting at lba into buf.
func (f *FileStorage) ReadBlocks(lba uint64, buf []byte) error {
	if err := checkRange(f, lba, len(buf)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.file.ReadAt(buf, int64(lba*uint64(f.blockSize))); err != nil {
		return errors.Wrapf(err, "read lba %d", lba)
	}
	return nil
}

// WriteBlocks writes buf to the blocks starting at lba.
func (f *FileStorage) WriteBlocks(lba uint64, buf []byte) error {
	if f.readOnly {
		return ErrWriteProtected
	}
	if err := checkRange(f, lba, len(buf)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.file.WriteAt(buf, int64(lba*uint64(f.blockSize))); err != nil {
		return errors.Wrapf(err, "write lba %d", lba)
	}
	return nil
}

// Sync flushes the image to disk.
func (f *FileStorage) Sync() error {
	if f.readOnly {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Wrap(f.file.Sync(), "sync disk image")
}

// ReadOnly reports whether the image was opened read-only.
func (f *FileStorage) ReadOnly() bool { return f.readOnly }

// Removable returns false.
func (f *FileStorage) Removable() bool { return false }

// Present returns true.
func (f *FileStorage) Present() bool { return true }

// Eject is not supported.
func (f *FileStorage) Eject() error {
	return errors.Wrap(pkg.ErrNotSupported, "disk image cannot be ejected")
}

// Close closes the image file.
func (f *FileStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
