package protocol

import "github.com/rs/xid"

// Request is the unit of traffic the cache core accepts from its host and
// forwards downstream. The cache never keeps a Request alive by pointer
// identity alone: bookkeeping that must survive a re-address (see
// SetAddress) is keyed by ID, stamped once at allocation time.
type Request struct {
	ID string

	Address    uint64
	DataSize   uint32
	CtrlSize   uint32
	WarpID     int
	CTAID      int
	ShaderID   int
	PC         uint64
	AccessType AccessType

	IsWrite  bool
	IsAtomic bool

	// WarpMask is the active-thread mask at issue time; ThreadZeroActive
	// is cached separately because the prefetcher's "leader thread" rule
	// (spec §4.7) only ever asks this one question.
	WarpMask         uint64
	ByteMask         []bool
	ThreadZeroActive bool

	Status RequestStatus
}

// SetStatus updates the request's last-known status, mirroring
// mem_fetch::set_status in the original.
func (r *Request) SetStatus(s RequestStatus) { r.Status = s }

// SetAddress rewrites the request's target address. The cache core does
// not call it; its prefetch path allocates a fresh request at the
// candidate address instead of retargeting a carrier.
func (r *Request) SetAddress(addr uint64) { r.Address = addr }

// SetDataSize rewrites the payload size, used both to shrink a fill
// response back to its original sub-line size and to grow an outgoing
// miss request to a full cache line.
func (r *Request) SetDataSize(size uint32) { r.DataSize = size }

// SetWarpID reassigns the request to a different warp. The cache core does
// not call it; its prefetch path sets WarpID on the freshly allocated
// request directly.
func (r *Request) SetWarpID(id int) { r.WarpID = id }

// NewRequest allocates a Request with a fresh, collision-free ID. The core
// itself never calls it: demand traffic arrives pre-built from the host,
// and write-allocate reads, writebacks and prefetches are synthesized
// through the host's RequestAllocator, which can build them with
// NewRequest.
func NewRequest(addr uint64, dataSize uint32, accessType AccessType, isWrite bool) *Request {
	return &Request{
		ID:         xid.New().String(),
		Address:    addr,
		DataSize:   dataSize,
		AccessType: accessType,
		IsWrite:    isWrite,
	}
}

// MemPort is the downstream collaborator a cache instance pushes outgoing
// requests to. The simulator's interconnect/DRAM controller implements it;
// this core treats it purely as a bounded sink.
type MemPort interface {
	// Full reports whether a request of the given size/direction could
	// not be accepted this cycle.
	Full(size uint32, isWrite bool) bool
	// Push hands ownership of req to the port.
	Push(req *Request)
}

// RequestAllocator synthesizes secondary requests the cache core must
// generate itself: the write-allocate read-of-line and the writeback of an
// evicted dirty line.
type RequestAllocator interface {
	// Alloc builds a new request for the given block address, access
	// type, and size. isWrite is true for writebacks.
	Alloc(blockAddr uint64, accessType AccessType, size uint32, isWrite bool) *Request
}

// AddressTranslator supplies the partition-stripped address an L2-variant
// cache uses for set indexing, to avoid set camping across memory
// partitions (spec §4.1).
type AddressTranslator interface {
	PartitionAddress(addr uint64) uint64
}
