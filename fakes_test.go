package gpucache

import "github.com/sarchlab/gpucache/protocol"

// fakePort is a MemPort test double that always accepts and just records
// what it was pushed, in order.
type fakePort struct {
	full   bool
	pushed []*protocol.Request
}

func (p *fakePort) Full(size uint32, isWrite bool) bool { return p.full }

func (p *fakePort) Push(req *protocol.Request) {
	p.pushed = append(p.pushed, req)
}

// fakeAllocator synthesizes requests the same way the host's real
// mem_fetch factory would, via protocol.NewRequest.
type fakeAllocator struct{}

func (fakeAllocator) Alloc(blockAddr uint64, accessType protocol.AccessType, size uint32, isWrite bool) *protocol.Request {
	return protocol.NewRequest(blockAddr, size, accessType, isWrite)
}

// testConfig returns a small, deterministic 4-set, 2-way configuration:
// LineSize 128 (LineSzLog2 7), linear set indexing, ON_MISS/WRITE_BACK/
// WRITE_ALLOCATE, generous queue and MSHR room unless a test shrinks it.
func testConfig() Config {
	return Config{
		LineSize:            128,
		LineSzLog2:          7,
		NSet:                4,
		Assoc:               2,
		ReplacementPolicy:   LRU,
		AllocPolicy:         OnMiss,
		WritePolicy:         WriteBack,
		WriteAllocatePolicy: WriteAllocate,
		SchedulerPolicy:     GreedyThenOldest,
		SetIndexFunction:    Linear,
		MissQueueSize:       8,
		DataPortWidth:       32,
		MSHRNumEntries:      8,
		MSHRMaxMerged:       4,
		IsL1:                true,
	}
}

func newTestCache(config Config) (*Cache, *fakePort) {
	port := &fakePort{}

	cache := MakeBuilder().
		WithName("test").
		WithConfig(config).
		WithDownstream(port).
		WithAllocator(fakeAllocator{}).
		Build()

	return cache, port
}

func newReadReq(addr uint64) *protocol.Request {
	req := protocol.NewRequest(addr, 4, protocol.GlobalRead, false)
	req.ThreadZeroActive = true

	return req
}

func newWriteReq(addr uint64) *protocol.Request {
	return protocol.NewRequest(addr, 4, protocol.GlobalWrite, true)
}
