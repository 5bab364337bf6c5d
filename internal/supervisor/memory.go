package supervisor

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// ResidentMemory returns the resident set size of the current process in bytes.
// Where /proc is unavailable it falls back to the memory obtained by the Go runtime.
func ResidentMemory() (uint64, error) {
	if proc, err := procfs.Self(); err == nil {
		if stat, err := proc.Stat(); err == nil {
			return uint64(stat.ResidentMemory()), nil //nolint:gosec // RSS is never negative
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys, nil
}
