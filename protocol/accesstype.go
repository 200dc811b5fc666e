package protocol

// AccessType classifies the intent behind a request. It drives both the
// stats matrix and which handler in the policy dispatcher a miss/hit
// routes through (e.g. atomics on GlobalRead promote a line to Modified).
type AccessType int

const (
	GlobalRead AccessType = iota
	GlobalWrite
	LocalRead
	LocalWrite
	ConstRead
	TextureRead
	InstFetch
	L1WritebackAccess
	L2WritebackAccess
	L1WriteAllocateAccess
	L2WriteAllocateAccess
)

// NumAccessType is the number of AccessType values, sized for
// (access_type, status) matrices.
const NumAccessType = int(L2WriteAllocateAccess) + 1

func (t AccessType) String() string {
	switch t {
	case GlobalRead:
		return "GLOBAL_ACC_R"
	case GlobalWrite:
		return "GLOBAL_ACC_W"
	case LocalRead:
		return "LOCAL_ACC_R"
	case LocalWrite:
		return "LOCAL_ACC_W"
	case ConstRead:
		return "CONST_ACC_R"
	case TextureRead:
		return "TEXTURE_ACC_R"
	case InstFetch:
		return "INST_ACC_R"
	case L1WritebackAccess:
		return "L1_WRBK_ACC"
	case L2WritebackAccess:
		return "L2_WRBK_ACC"
	case L1WriteAllocateAccess:
		return "L1_WR_ALLOC_R"
	case L2WriteAllocateAccess:
		return "L2_WR_ALLOC_R"
	default:
		return "UNKNOWN_ACCESS_TYPE"
	}
}

// IsRead reports whether the access type represents a read issued for the
// purpose of satisfying a load (as opposed to a writeback or write-allocate
// fill, which are also reads at the memory-system level but never feed the
// stride prefetcher).
func (t AccessType) IsRead() bool {
	return t == GlobalRead || t == LocalRead || t == ConstRead ||
		t == TextureRead || t == InstFetch
}

// Event is a token appended to the out-parameter event stream so the host
// can do its own bookkeeping (e.g. counting bytes moved downstream).
type Event int

const (
	ReadRequestSent Event = iota
	WriteRequestSent
	WriteBackRequestSent
)

func (e Event) String() string {
	switch e {
	case ReadRequestSent:
		return "READ_REQUEST_SENT"
	case WriteRequestSent:
		return "WRITE_REQUEST_SENT"
	case WriteBackRequestSent:
		return "WRITE_BACK_REQUEST_SENT"
	default:
		return "UNKNOWN_EVENT"
	}
}

// EventList records events in the order they were generated; a sequence
// within a single cache access, not a ring buffer.
type EventList []Event

// Has reports whether the list contains the given event.
func (l EventList) Has(e Event) bool {
	for _, x := range l {
		if x == e {
			return true
		}
	}

	return false
}
