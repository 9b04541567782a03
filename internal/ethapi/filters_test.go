package ethapi

import (
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

func TestNewBlockFilterHasNoChangesBeforeMining(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	id := svc.NewBlockFilter()

	changes, err := svc.GetFilterChanges(id)
	r.NoError(err)
	r.Empty(changes)
}

func TestNewPendingTransactionFilterInstalls(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	id := svc.NewPendingTransactionFilter()
	changes, err := svc.GetFilterChanges(id)
	r.NoError(err)
	r.Empty(changes)
}

func TestUninstallFilterRemovesIt(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	id := svc.NewBlockFilter()
	r.True(svc.UninstallFilter(id))
	r.False(svc.UninstallFilter(id))
}

func TestGetFilterChangesUnknownIDErrors(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	_, err := svc.GetFilterChanges(999)
	r.Error(err)
}

func TestGetLogsEmptyChainReturnsEmpty(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	logs, err := svc.GetLogs(LogFilterArgs{})
	r.NoError(err)
	r.Empty(logs)
}

func TestToSpecDefaultsOmittedBoundsToLatest(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	spec, err := svc.toSpec(LogFilterArgs{})
	r.NoError(err)
	r.NotNil(spec.FromBlock)
	r.NotNil(spec.ToBlock)
	r.Equal(c.Height(), *spec.FromBlock)
	r.Equal(c.Height(), *spec.ToBlock)
}

func TestToSpecResolvesExplicitLatest(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	latest := rpc.LatestBlockNumber
	spec, err := svc.toSpec(LogFilterArgs{FromBlock: &latest, ToBlock: &latest})
	r.NoError(err)
	r.Equal(c.Height(), *spec.FromBlock)
	r.Equal(c.Height(), *spec.ToBlock)
}

func TestToSpecRejectsToBlockBeforeFromBlock(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewFilterService(c)

	from := rpc.BlockNumber(5)
	to := rpc.BlockNumber(1)
	_, err := svc.toSpec(LogFilterArgs{FromBlock: &from, ToBlock: &to})
	r.Error(err)
}
