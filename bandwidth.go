package gpucache

import "github.com/sarchlab/gpucache/protocol"

// BandwidthManager tracks data-port and fill-port occupancy as two
// saturating counters, each decremented by one on every Replenish call
// (one per cycle()).
type BandwidthManager struct {
	LineSize  uint32
	PortWidth uint32

	dataPortOccupiedCycles uint64
	fillPortOccupiedCycles uint64
}

// NewBandwidthManager builds a bandwidth manager for the given line size
// and port width, both in bytes.
func NewBandwidthManager(lineSize, portWidth uint32) *BandwidthManager {
	return &BandwidthManager{LineSize: lineSize, PortWidth: portWidth}
}

func ceilDiv(n, d uint32) uint64 {
	if d == 0 {
		return 0
	}

	return uint64((n + d - 1) / d)
}

// UseDataPort occupies the data port for the cycles a request of the
// given outcome and event stream costs.
func (b *BandwidthManager) UseDataPort(req *protocol.Request, status protocol.RequestStatus, events protocol.EventList) {
	switch status {
	case protocol.Hit:
		b.dataPortOccupiedCycles += ceilDiv(req.DataSize, b.PortWidth)
	case protocol.HitReserved, protocol.Miss:
		if events.Has(protocol.WriteBackRequestSent) {
			b.dataPortOccupiedCycles += ceilDiv(b.LineSize, b.PortWidth)
		}
	case protocol.ReservationFail:
		// no port time spent on backpressure
	}
}

// UseFillPort occupies the fill port for one full line transfer.
func (b *BandwidthManager) UseFillPort() {
	b.fillPortOccupiedCycles += ceilDiv(b.LineSize, b.PortWidth)
}

// DataPortFree reports whether the data port has no remaining occupied
// cycles.
func (b *BandwidthManager) DataPortFree() bool { return b.dataPortOccupiedCycles == 0 }

// FillPortFree reports whether the fill port has no remaining occupied
// cycles.
func (b *BandwidthManager) FillPortFree() bool { return b.fillPortOccupiedCycles == 0 }

// Replenish decrements both counters by one, saturating at zero; called
// exactly once per cycle().
func (b *BandwidthManager) Replenish() {
	if b.dataPortOccupiedCycles > 0 {
		b.dataPortOccupiedCycles--
	}

	if b.fillPortOccupiedCycles > 0 {
		b.fillPortOccupiedCycles--
	}
}
