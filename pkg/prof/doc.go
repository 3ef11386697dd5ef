// Package prof writes pprof profiles of a simulation run.
//
//	stop, err := prof.StartCPU("cpu.prof")
//	if err != nil {
//		return err
//	}
//	defer stop()
//
// Only one CPU profile may run at a time. Snapshot profiles such as the heap
// can be written at any point with Write.
package prof
