package emulator

import (
	"math/rand/v2"
	"time"

	"github.com/advaypal/CS2105/internal/config"
)

// byteCorruptRate is the chance that any byte after the first is altered
// once a datagram has been chosen for corruption.
const byteCorruptRate = 0.3

// verdict is the fate of one datagram.
type verdict struct {
	drop    bool
	corrupt bool
	delay   time.Duration
}

// injector decides drop, corruption and delay for one pipe. Per datagram it
// draws from rng in a fixed order (drop, corrupt, delay); byte-level
// corruption draws from byteRng so that packet length never shifts the
// drop and delay sequence.
type injector struct {
	fault    config.Fault
	minDelay int // milliseconds
	maxDelay int

	rng     *rand.Rand
	byteRng *rand.Rand
}

func newInjector(fault config.Fault, minDelay, maxDelay time.Duration, seed int64) *injector {
	return &injector{
		fault:    fault,
		minDelay: int(minDelay / time.Millisecond),
		maxDelay: int(maxDelay / time.Millisecond),
		rng:      rand.New(rand.NewPCG(uint64(seed), 0)),
		byteRng:  rand.New(rand.NewPCG(uint64(seed), 1)),
	}
}

// apply decides the fate of pkt, corrupting it in place when chosen.
func (in *injector) apply(pkt []byte) verdict {
	if in.rng.Float64() < in.fault.DropRate {
		return verdict{drop: true}
	}

	var v verdict
	if in.rng.Float64() < in.fault.CorruptRate {
		in.corrupt(pkt)
		v.corrupt = true
	}

	ms := in.minDelay + in.rng.IntN(in.maxDelay-in.minDelay+1)
	v.delay = time.Duration(ms) * time.Millisecond
	return v
}

// corrupt always alters the first byte; later bytes are altered with
// probability byteCorruptRate.
func (in *injector) corrupt(pkt []byte) {
	for i := range pkt {
		if i == 0 || in.byteRng.Float64() < byteCorruptRate {
			pkt[i] = (pkt[i] + 1) % 10
		}
	}
}
