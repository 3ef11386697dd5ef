package prof

import (
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/pkg/errors"
)

// Profiling errors.
var (
	// ErrCPUActive indicates a CPU profile is already being recorded.
	ErrCPUActive = errors.New("cpu profile already active")

	// ErrInvalidProfile indicates a profile name pprof does not know, or
	// the CPU profile passed to Write.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile names a pprof profile.
type Profile string

// Profiles.
const (
	ProfileCPU       Profile = "cpu"
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

var (
	cpuMu     sync.Mutex
	cpuActive bool
)

// StartCPU records a CPU profile into path until the returned function is
// called. Later calls return the result of the first.
func StartCPU(path string) (stop func() error, err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create cpu profile")
	}
	stopW, err := StartCPUWriter(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	var (
		once    sync.Once
		stopErr error
	)
	return func() error {
		once.Do(func() {
			if stopErr = stopW(); stopErr != nil {
				f.Close()
				return
			}
			stopErr = errors.Wrap(f.Close(), "close cpu profile")
		})
		return stopErr
	}, nil
}

// StartCPUWriter records a CPU profile into w until the returned function
// is called. Calling the function twice is harmless.
func StartCPUWriter(w io.Writer) (stop func() error, err error) {
	cpuMu.Lock()
	defer cpuMu.Unlock()
	if cpuActive {
		return nil, ErrCPUActive
	}
	if err := pprof.StartCPUProfile(w); err != nil {
		return nil, errors.Wrap(err, "start cpu profile")
	}
	cpuActive = true

	var once sync.Once
	return func() error {
		once.Do(func() {
			cpuMu.Lock()
			defer cpuMu.Unlock()
			pprof.StopCPUProfile()
			cpuActive = false
		})
		return nil
	}, nil
}

// CPUActive reports whether a CPU profile is being recorded.
func CPUActive() bool {
	cpuMu.Lock()
	defer cpuMu.Unlock()
	return cpuActive
}

// Write writes snapshot profile p to path in the binary pprof format.
func Write(p Profile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s profile", p)
	}
	if err := WriteTo(p, f, 0); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s profile", p)
}

// WriteTo writes snapshot profile p to w. Debug 0 is the binary format,
// 1 is text.
func WriteTo(p Profile, w io.Writer, debug int) error {
	if p == ProfileCPU {
		return errors.Wrap(ErrInvalidProfile, "cpu profile needs StartCPU")
	}
	if p == ProfileHeap || p == ProfileAllocs {
		runtime.GC()
	}
	pp := pprof.Lookup(string(p))
	if pp == nil {
		return errors.Wrapf(ErrInvalidProfile, "%q", string(p))
	}
	return errors.Wrapf(pp.WriteTo(w, debug), "write %s profile", p)
}
