package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anspar/hosq/internal/store"
)

type fakeStore struct {
	validBlocks  []store.ValidBlock
	providers    []store.Provider
	priceUpdates int
	urlUpdates   int
	ownerUpdates int
	nameUpdates  int
	resumeBlock  int64
	resumeErr    error
	resumeTables []string
}

func (f *fakeStore) ResumeBlock(ctx context.Context, chainID, startBlock int64, table string) (int64, error) {
	f.resumeTables = append(f.resumeTables, table)
	if f.resumeErr != nil {
		return 0, f.resumeErr
	}
	if f.resumeBlock != 0 {
		return f.resumeBlock, nil
	}
	return startBlock, nil
}

func (f *fakeStore) InsertValidBlock(ctx context.Context, v store.ValidBlock) error {
	f.validBlocks = append(f.validBlocks, v)
	return nil
}

func (f *fakeStore) UpsertProvider(ctx context.Context, p store.Provider) error {
	f.providers = append(f.providers, p)
	return nil
}

func (f *fakeStore) UpdateProviderBlockPrice(ctx context.Context, chainID, providerID, priceGwei, updateBlock int64) error {
	f.priceUpdates++
	return nil
}

func (f *fakeStore) UpdateProviderApiURL(ctx context.Context, chainID, providerID int64, apiURL string, updateBlock int64) error {
	f.urlUpdates++
	return nil
}

func (f *fakeStore) UpdateProviderOwner(ctx context.Context, chainID, providerID int64, owner string, updateBlock int64) error {
	f.ownerUpdates++
	return nil
}

func (f *fakeStore) UpdateProviderName(ctx context.Context, chainID, providerID int64, name string, updateBlock int64) error {
	f.nameUpdates++
	return nil
}

func TestApplyIgnoresMismatchedProviderID(t *testing.T) {
	fs := &fakeStore{}
	w := &Watcher{Runtime: &Runtime{ChainID: 1}, Store: fs, ProviderID: 7}

	err := w.apply(context.Background(), DecodedEvent{Kind: KindUpdateValidBlock, ProviderID: 9, CID: "Qm1"}, 10)
	require.NoError(t, err)
	require.Empty(t, fs.validBlocks)
}

func TestApplyInsertsMatchingProviderID(t *testing.T) {
	fs := &fakeStore{}
	w := &Watcher{Runtime: &Runtime{ChainID: 1}, Store: fs, ProviderID: 7}

	err := w.apply(context.Background(), DecodedEvent{Kind: KindUpdateValidBlock, ProviderID: 7, CID: "Qm1", EndBlock: 100, Donor: "0xabc"}, 10)
	require.NoError(t, err)
	require.Len(t, fs.validBlocks, 1)
	require.Equal(t, "Qm1", fs.validBlocks[0].CID)
	require.Equal(t, int64(10), fs.validBlocks[0].UpdateBlock)
}

func TestApplyAddProviderConvertsToGwei(t *testing.T) {
	fs := &fakeStore{}
	w := &Watcher{Runtime: &Runtime{ChainID: 1}, Store: fs}

	err := w.apply(context.Background(), DecodedEvent{
		Kind:          KindAddProvider,
		ProviderID:    3,
		OwnerAddress:  "0xdead",
		BlockPriceWei: big.NewInt(4_000_000_000),
		APIURL:        "http://node",
		Name:          "acme",
	}, 20)
	require.NoError(t, err)
	require.Len(t, fs.providers, 1)
	require.Equal(t, int64(4), fs.providers[0].BlockPriceGwei)
}

func TestRunResumesFromItsOwnEventSpecTable(t *testing.T) {
	fs := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &Watcher{
		Runtime: &Runtime{ChainID: 1},
		Store:   fs,
		Monitor: nil,
		Spec:    eventSpecs[2], // UpdateProviderBlockPrice, table event_add_provider
	}
	w.Run(ctx)

	require.Equal(t, []string{"event_add_provider"}, fs.resumeTables)
}

func TestApplyDispatchesEachProviderUpdateKind(t *testing.T) {
	fs := &fakeStore{}
	w := &Watcher{Runtime: &Runtime{ChainID: 1}, Store: fs}

	require.NoError(t, w.apply(context.Background(), DecodedEvent{Kind: KindUpdateProviderBlockPrice}, 1))
	require.NoError(t, w.apply(context.Background(), DecodedEvent{Kind: KindUpdateProviderApiURL}, 1))
	require.NoError(t, w.apply(context.Background(), DecodedEvent{Kind: KindUpdateProviderAddress}, 1))
	require.NoError(t, w.apply(context.Background(), DecodedEvent{Kind: KindUpdateProviderName}, 1))

	require.Equal(t, 1, fs.priceUpdates)
	require.Equal(t, 1, fs.urlUpdates)
	require.Equal(t, 1, fs.ownerUpdates)
	require.Equal(t, 1, fs.nameUpdates)
}
