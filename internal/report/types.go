// Package report keeps a JSON journal of the faults injected during a
// mount, so that tests running on top of faultfs can tell exactly which
// bytes never reached the target.
package report

import "time"

// Version of the report file layout.
const Version = 1

// Report is the on-disk journal of one mount.
type Report struct {
	// Target directory the faults were written to
	Target string `json:"target"`

	Started time.Time `json:"started"`
	Updated time.Time `json:"updated"`

	// Totals over every file
	Totals Counters `json:"totals"`

	// Per-file counters keyed by path relative to Target
	Files map[string]*FileFaults `json:"files"`

	// Version for future compatibility
	Version int `json:"version"`
}

// Counters accumulate injected faults.
type Counters struct {
	Faults         int64 `json:"faults"`
	FirstHalf      int64 `json:"first_half"`
	SecondHalf     int64 `json:"second_half"`
	RequestedBytes int64 `json:"requested_bytes"`
	PersistedBytes int64 `json:"persisted_bytes"`
}

// FileFaults are the counters of a single file plus its latest write.
type FileFaults struct {
	Counters

	LastOffset int64  `json:"last_offset"`
	LastHalf   string `json:"last_half"`
}
