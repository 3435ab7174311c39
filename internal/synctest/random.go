package synctest

import (
	"math/rand/v2"

	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/netstatus"
)

// RandomInputs generates reproducible inputs from a seed.
type RandomInputs struct {
	rng *rand.Rand
	// disconnectRate is the per-participant, per-frame chance in percent of
	// being reported disconnected.
	disconnectRate int
	status         *netstatus.Report
	buf            []arena.Input
}

// NewRandomInputs creates a generator. Equal seeds give equal sequences.
func NewRandomInputs(seed uint64, participants, disconnectRate int) *RandomInputs {
	types := make([]netstatus.ParticipantType, participants)
	status := netstatus.NewReport(types...)
	status.OnRunning()
	return &RandomInputs{
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		disconnectRate: max(0, min(disconnectRate, 100)),
		status:         status,
		buf:            make([]arena.Input, participants),
	}
}

// Status is the simulated connection state after the latest frame.
func (g *RandomInputs) Status() *netstatus.Report {
	return g.status
}

// Next never runs out. The returned slice is reused by the following call.
func (g *RandomInputs) Next(int32) ([]arena.Input, uint32, error) {
	for i := range g.buf {
		g.buf[i] = arena.Input(g.rng.UintN(64))
		if g.disconnectRate > 0 && g.rng.IntN(100) < g.disconnectRate {
			g.status.OnDisconnected(i)
		} else {
			g.status.OnResumed(i)
		}
	}
	return g.buf, g.status.DisconnectMask(), nil
}
