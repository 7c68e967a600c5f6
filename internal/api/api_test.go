package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anspar/hosq/internal/ipfs"
	"github.com/anspar/hosq/internal/monitoring"
	"github.com/anspar/hosq/internal/store"
)

type fakeStore struct {
	pinned        []store.PinnedCID
	providers     []store.ProviderInfo
	isPinnedCount int64
	cidInfo       []store.CIDInfoRow
	cidExists     bool
	inserted      []store.ValidBlock
}

func (f *fakeStore) SelectPinnedForDonor(ctx context.Context, chainID int64, address string, bn int64) ([]store.PinnedCID, error) {
	return f.pinned, nil
}
func (f *fakeStore) SelectProviders(ctx context.Context, chainID int64) ([]store.ProviderInfo, error) {
	return f.providers, nil
}
func (f *fakeStore) SelectProvider(ctx context.Context, chainID int64, address string) ([]store.ProviderInfo, error) {
	return f.providers, nil
}
func (f *fakeStore) IsPinned(ctx context.Context, cid string) (int64, error) {
	return f.isPinnedCount, nil
}
func (f *fakeStore) CIDInfo(ctx context.Context, cid string) ([]store.CIDInfoRow, error) {
	return f.cidInfo, nil
}
func (f *fakeStore) CIDExists(ctx context.Context, cid string) (bool, error) {
	return f.cidExists, nil
}
func (f *fakeStore) InsertValidBlock(ctx context.Context, v store.ValidBlock) error {
	f.inserted = append(f.inserted, v)
	return nil
}

type fakeChains struct {
	block        int64
	blockTimeSec uint64
	ok           bool
}

func (f fakeChains) LatestBlock(chainID int64) (int64, uint64, bool) {
	return f.block, f.blockTimeSec, f.ok
}

type fakeDagStat struct {
	size int64
}

func (f fakeDagStat) DagStat(ctx context.Context, node ipfs.Node, cid string) (ipfs.DagStat, error) {
	return ipfs.DagStat{Size: f.size}, nil
}

func newTestServer(fs *fakeStore, chains fakeChains, dagSize int64, adminSecret string) *Server {
	return &Server{
		Store:       fs,
		Monitor:     monitoring.New(),
		IPFS:        fakeDagStat{size: dagSize},
		Nodes:       []ipfs.Node{{APIURL: "http://n1"}},
		Chains:      chains,
		AdminSecret: adminSecret,
	}
}

func TestHandleCIDsPinnedUnknownChain(t *testing.T) {
	s := newTestServer(&fakeStore{}, fakeChains{ok: false}, 0, "sec")
	req := httptest.NewRequest(http.MethodGet, "/v0/cid/pinned?chain_id=1&address=0xabc", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCIDsPinnedOK(t *testing.T) {
	fs := &fakeStore{pinned: []store.PinnedCID{{CID: "Qm1"}}}
	s := newTestServer(fs, fakeChains{block: 10, ok: true}, 0, "sec")
	req := httptest.NewRequest(http.MethodGet, "/v0/cid/pinned?chain_id=1&address=0xabc", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Qm1")
}

func TestHandleIsPinned(t *testing.T) {
	fs := &fakeStore{isPinnedCount: 3}
	s := newTestServer(fs, fakeChains{}, 0, "sec")
	req := httptest.NewRequest(http.MethodGet, "/v0/cid/pinned/Qm1", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"nodes":3}`, w.Body.String())
}

func TestAdminPinCIDWithCorrectSecretWritesNegativeOne(t *testing.T) {
	fs := &fakeStore{}
	s := newTestServer(fs, fakeChains{block: 50, blockTimeSec: 2, ok: true}, 0, "topsecret")
	req := httptest.NewRequest(http.MethodPost, "/v0/cid/pin?chain_id=1&cid=Qm1&address=0xabc&secret=topsecret", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fs.inserted, 1)
	require.Equal(t, int64(-1), fs.inserted[0].EndBlock)
	require.True(t, fs.inserted[0].ManualAdd)
}

func TestAdminPinCIDWithoutSecretGrantsWindowForLargeCID(t *testing.T) {
	fs := &fakeStore{}
	s := newTestServer(fs, fakeChains{block: 50, blockTimeSec: 2, ok: true}, 20*1024*1024, "topsecret")
	req := httptest.NewRequest(http.MethodPost, "/v0/cid/pin?chain_id=1&cid=Qm1&address=0xabc", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fs.inserted, 1)
	require.Equal(t, int64(50+604800/2), fs.inserted[0].EndBlock)
}

func TestAdminPinCIDWithoutSecretSmallCIDNeverExpires(t *testing.T) {
	fs := &fakeStore{}
	s := newTestServer(fs, fakeChains{block: 50, blockTimeSec: 2, ok: true}, 1024, "topsecret")
	req := httptest.NewRequest(http.MethodPost, "/v0/cid/pin?chain_id=1&cid=Qm1&address=0xabc", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(-1), fs.inserted[0].EndBlock)
}

func TestCORSPreflightHandled(t *testing.T) {
	s := newTestServer(&fakeStore{}, fakeChains{}, 0, "sec")
	req := httptest.NewRequest(http.MethodOptions, "/v0/monitoring", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
