package gpucache

import (
	"fmt"

	"github.com/sarchlab/gpucache/internal/mshr"
	"github.com/sarchlab/gpucache/internal/prefetch"
	"github.com/sarchlab/gpucache/internal/tagging"
	"github.com/sarchlab/gpucache/protocol"
)

// Builder assembles a Cache from a Config plus the two host-supplied
// collaborators (the downstream port and the request allocator), using
// value-receiver chaining so a caller can derive variants from a shared
// base without either sharing or losing state between them.
type Builder struct {
	name   string
	config Config

	downstream protocol.MemPort
	allocator  protocol.RequestAllocator
}

// MakeBuilder returns a Builder with a default, unconfigured Config and the
// name "Cache"; WithConfig, WithDownstream and WithAllocator must be
// chained before Build, while WithName is optional.
func MakeBuilder() Builder {
	return Builder{name: "Cache"}
}

// WithName sets the name used to label stats and Prometheus metrics.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithConfig sets the cache's configuration.
func (b Builder) WithConfig(config Config) Builder {
	b.config = config
	return b
}

// WithDownstream sets the port the miss queues drain into.
func (b Builder) WithDownstream(downstream protocol.MemPort) Builder {
	b.downstream = downstream
	return b
}

// WithAllocator sets the factory used to synthesize writeback and
// prefetch carrier requests.
func (b Builder) WithAllocator(allocator protocol.RequestAllocator) Builder {
	b.allocator = allocator
	return b
}

// Build validates the accumulated configuration and constructs a Cache.
// It panics on any invalid or incomplete configuration, exactly as
// validate() does for the Config fields it covers.
func (b Builder) Build() *Cache {
	b.config.validate()

	if b.downstream == nil {
		panic("gpucache: builder: WithDownstream is required")
	}

	if b.allocator == nil {
		panic("gpucache: builder: WithAllocator is required")
	}

	if b.config.MissQueueSize <= 0 {
		panic(fmt.Sprintf("gpucache: builder: miss_queue_size must be positive, got %d", b.config.MissQueueSize))
	}

	if b.config.MSHRNumEntries <= 0 || b.config.MSHRMaxMerged <= 0 {
		panic("gpucache: builder: mshr_num_entries and mshr_max_merged must be positive")
	}

	c := &Cache{
		Config:     b.config,
		Tags:       tagging.New(b.config.NSet, b.config.Assoc, b.config.ReplacementPolicy),
		MSHR:       mshr.New(b.config.MSHRNumEntries, b.config.MSHRMaxMerged),
		Bandwidth:  NewBandwidthManager(b.config.LineSize, b.config.DataPortWidth),
		Stats:      NewStats(b.name),
		Locality:   NewLocalityEvaluator(b.config.NSet, b.config.Assoc),
		Prefetches: prefetch.NewTable(),

		downstream: b.downstream,
		allocator:  b.allocator,

		sideTable: map[string]*sideTableEntry{},
	}

	return c
}
