package chain

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/types"
)

// TopicFilter is one position's predicate: All matches anything, a
// non-empty disjunction matches any one of the listed hashes (spec §4.E
// group 4).
type TopicFilter struct {
	All      bool
	OneOf    mapset.Set[common.Hash]
}

func AnyTopic() TopicFilter { return TopicFilter{All: true} }

// LogFilterSpec configures an installed log filter: from_block/to_block +
// address + up to four topic-position filters.
type LogFilterSpec struct {
	FromBlock *uint64 // nil means "latest" at install/query time
	ToBlock   *uint64
	Address   *common.Address
	Topics    [4]TopicFilter
}

// Matches reports whether log satisfies the address/topics predicate of
// spec §4.E: address matches the configured address or none is
// configured, AND for each position i, the filter is All or
// log.topics[i] is one of the disjuncts.
func (spec LogFilterSpec) Matches(log *types.Log) bool {
	if spec.Address != nil && common.Address(log.Address) != *spec.Address {
		return false
	}
	for i, tf := range spec.Topics {
		if tf.All {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		if tf.OneOf == nil || !tf.OneOf.Contains(common.Hash(log.Topics[i])) {
			return false
		}
	}
	return true
}

type filterKind int

const (
	filterLog filterKind = iota
	filterBlock
	filterPendingTx
)

type installedFilter struct {
	kind kind
	spec LogFilterSpec

	// cursors
	lastBlockNumber  uint64 // block filter: chain height at install time; not advanced afterwards
	lastPendingCount int    // pending-tx filter: pending-queue length at install time; not advanced afterwards
	changesBlocks    []common.Hash
	changesTxs       []common.Hash
}

type kind = filterKind

// FilterSet is spec §4.C's filter registry: independent lifetimes, no
// idle-timeout enforcement implemented here beyond Uninstall (a real
// deployment would sweep idle filters; out of scope per spec §3).
type FilterSet struct {
	mu      sync.Mutex
	nextID  uint64
	filters map[uint64]*installedFilter
	logSpec map[uint64]LogFilterSpec

	installed prometheus.Counter
}

func newFilterSet(installed prometheus.Counter) *FilterSet {
	return &FilterSet{
		filters:   make(map[uint64]*installedFilter),
		logSpec:   make(map[uint64]LogFilterSpec),
		installed: installed,
	}
}

func (fs *FilterSet) InstallLogFilter(spec LogFilterSpec) uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextID++
	id := fs.nextID
	fs.filters[id] = &installedFilter{kind: filterLog, spec: spec}
	fs.logSpec[id] = spec
	fs.installed.Inc()
	return id
}

func (fs *FilterSet) InstallBlockFilter(currentHeight uint64) uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextID++
	id := fs.nextID
	fs.filters[id] = &installedFilter{kind: filterBlock, lastBlockNumber: currentHeight}
	fs.installed.Inc()
	return id
}

func (fs *FilterSet) InstallPendingTxFilter(currentPendingCount int) uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextID++
	id := fs.nextID
	fs.filters[id] = &installedFilter{kind: filterPendingTx, lastPendingCount: currentPendingCount}
	fs.installed.Inc()
	return id
}

func (fs *FilterSet) Uninstall(id uint64) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.filters[id]; !ok {
		return false
	}
	delete(fs.filters, id)
	delete(fs.logSpec, id)
	return true
}

func (fs *FilterSet) Spec(id uint64) (LogFilterSpec, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, ok := fs.logSpec[id]
	return s, ok
}

// notifyBlock records a newly appended block hash against every block
// filter's pending changes buffer.
func (fs *FilterSet) notifyBlock(h common.Hash) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, f := range fs.filters {
		if f.kind == filterBlock {
			f.changesBlocks = append(f.changesBlocks, h)
		}
	}
}

func (fs *FilterSet) notifyPendingTx(h common.Hash) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, f := range fs.filters {
		if f.kind == filterPendingTx {
			f.changesTxs = append(f.changesTxs, h)
		}
	}
}

// GetChangesBlocks drains and returns the delta of block hashes seen
// since the last call — two consecutive calls with no intervening block
// return an empty list the second time (spec §8's idempotence property).
func (fs *FilterSet) GetChangesBlocks(id uint64) ([]common.Hash, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.filters[id]
	if !ok || f.kind != filterBlock {
		return nil, ok
	}
	out := f.changesBlocks
	f.changesBlocks = nil
	return out, true
}

func (fs *FilterSet) GetChangesPendingTx(id uint64) ([]common.Hash, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.filters[id]
	if !ok || f.kind != filterPendingTx {
		return nil, ok
	}
	out := f.changesTxs
	f.changesTxs = nil
	return out, true
}

func (fs *FilterSet) Kind(id uint64) (filterKind, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.filters[id]
	if !ok {
		return 0, false
	}
	return f.kind, true
}

const (
	FilterKindLog       = filterLog
	FilterKindBlock     = filterBlock
	FilterKindPendingTx = filterPendingTx
)
