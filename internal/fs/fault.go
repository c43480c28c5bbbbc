package fs

import (
	"math/rand"
	"sync"
	"time"

	"faultfs/internal/logging"

	"golang.org/x/time/rate"
)

var (
	faultLogger = logging.GetLogger().WithPrefix("fault")
)

// Coin is the source of the per-write fault decision. Flip must return true
// and false with equal probability, independently on every call.
type Coin interface {
	Flip() bool
}

type randomCoin struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomCoin returns a fair coin backed by math/rand. A zero seed picks
// one from the clock.
func NewRandomCoin(seed int64) Coin {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	faultLogger.Debug("Fault coin seeded with %d", seed)
	return &randomCoin{rng: rand.New(rand.NewSource(seed))}
}

func (c *randomCoin) Flip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Intn(2) == 0
}

// Half names the part of a write payload that reached the disk.
type Half int

const (
	// FirstHalf is data[:len/2]
	FirstHalf Half = iota
	// SecondHalf is data[len/2:]
	SecondHalf
)

func (h Half) String() string {
	if h == FirstHalf {
		return "first"
	}
	return "second"
}

// Fault describes one write whose payload was truncated and persisted.
type Fault struct {
	Path      string // Real path of the written file
	Offset    int64
	Half      Half
	Requested int // Bytes the writer asked for, and was told were written
	Persisted int // Bytes that reached the target
}

// FaultRecorder receives the outcome of every injected fault whose
// truncated payload was written successfully.
type FaultRecorder interface {
	RecordFault(f Fault)
}

// Recorders fans faults out to several recorders. Nil entries are skipped.
func Recorders(recorders ...FaultRecorder) FaultRecorder {
	var out multiRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []FaultRecorder

func (m multiRecorder) RecordFault(f Fault) {
	for _, r := range m {
		r.RecordFault(f)
	}
}

// FaultInjector applies the partial-write policy: each write keeps only
// one half of its payload, chosen by a fresh coin flip.
type FaultInjector struct {
	coin     Coin
	limiter  *rate.Limiter
	recorder FaultRecorder
}

// NewFaultInjector creates an injector. logPerSecond bounds how many
// injected faults are logged at debug level; zero disables those lines.
func NewFaultInjector(coin Coin, recorder FaultRecorder, logPerSecond float64) *FaultInjector {
	burst := int(logPerSecond)
	if burst < 1 && logPerSecond > 0 {
		burst = 1
	}
	return &FaultInjector{
		coin:     coin,
		limiter:  rate.NewLimiter(rate.Limit(logPerSecond), burst),
		recorder: recorder,
	}
}

// Truncate flips the coin and returns the half of data to persist.
func (fi *FaultInjector) Truncate(data []byte) ([]byte, Half) {
	half := SecondHalf
	if fi.coin.Flip() {
		half = FirstHalf
	}
	return SplitPayload(data, half), half
}

// record reports a persisted fault to the recorder and, rate permitting,
// to the log.
func (fi *FaultInjector) record(path string, offset int64, half Half, requested, persisted int) {
	if fi.recorder != nil {
		fi.recorder.RecordFault(Fault{
			Path:      path,
			Offset:    offset,
			Half:      half,
			Requested: requested,
			Persisted: persisted,
		})
	}
	if fi.limiter.Allow() {
		faultLogger.Debug("Injected fault on %q @%d: kept %s half, %d of %d bytes",
			path, offset, half, persisted, requested)
	}
}

// SplitPayload returns data[:len/2] for FirstHalf and data[len/2:] for
// SecondHalf.
func SplitPayload(data []byte, half Half) []byte {
	mid := len(data) / 2
	if half == FirstHalf {
		return data[:mid]
	}
	return data[mid:]
}
