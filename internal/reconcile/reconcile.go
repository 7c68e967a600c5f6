// Package reconcile runs the three periodic control loops that keep a
// fleet of IPFS nodes in sync with declared on-chain obligations: pin
// new CIDs, retry previously failed pins, unpin expired ones. Grounded
// line-for-line on original_source/worker/src/ipfs_watcher.rs's
// pin_chain_cids/retry_failed_cids/unpin_cids.
package reconcile

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/anspar/hosq/internal/ipfs"
	"github.com/anspar/hosq/internal/store"
)

// LatestBlockSource is satisfied by chain.Runtime; kept as an
// interface so tests don't need a live RPC session.
type LatestBlockSource interface {
	LatestBlock() (uint64, bool)
}

// Store is the subset of internal/store.Store the reconciliation
// engine needs.
type Store interface {
	ExtendPinnedDeadlines(ctx context.Context, chainID, bn int64) error
	SelectNewCIDsToPin(ctx context.Context, chainID, bn int64) ([]store.NewCIDToPin, error)
	InsertPinned(ctx context.Context, chainID int64, node, cid string, endBlock int64) error
	InsertFailedPin(ctx context.Context, chainID int64, node, cid string, endBlock int64) error
	DeleteExpiredFailedPins(ctx context.Context, chainID, bn int64) error
	SelectFailedPins(ctx context.Context, chainID, bn int64) ([]store.CIDTarget, error)
	DeleteSharedExpiredPinned(ctx context.Context, chainID, bn int64) error
	SelectLocalExpiredNotSharedPinned(ctx context.Context, chainID, bn int64) ([]store.CIDTarget, error)
	DeletePinned(ctx context.Context, chainID int64, node, cid string, endBlock int64) error
}

// IPFSClient is the subset of internal/ipfs.Client the engine needs.
type IPFSClient interface {
	Pin(ctx context.Context, node ipfs.Node, cid string) error
	Unpin(ctx context.Context, node ipfs.Node, cid string) error
}

// Engine drives the three loops for one chain.
type Engine struct {
	ChainID            int64
	ChainName          string
	Runtime            LatestBlockSource
	Store              Store
	IPFS               IPFSClient
	Nodes              []ipfs.Node
	UpdateNodesSec     uint64
	RetryFailedCidsSec uint64
}

// Run starts the pin, retry, and unpin loops for this chain and blocks
// until ctx is cancelled, mirroring
// original_source/worker/src/ipfs_watcher.rs's watch_nodes spawning
// all three as concurrent tasks.
func (e *Engine) Run(ctx context.Context) {
	go e.pinLoop(ctx)
	go e.retryLoop(ctx)
	go e.unpinLoop(ctx)
	<-ctx.Done()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func secInterval(sec uint64) time.Duration {
	if sec == 0 {
		return time.Second
	}
	return time.Duration(sec) * time.Second
}

// pinLoop is spec.md §4.3.1.
func (e *Engine) pinLoop(ctx context.Context) {
	interval := secInterval(e.UpdateNodesSec)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bn, ok := e.Runtime.LatestBlock()
		if !ok {
			sleep(ctx, interval)
			continue
		}

		if err := e.Store.ExtendPinnedDeadlines(ctx, e.ChainID, int64(bn)); err != nil {
			log.Error("reconcile: extend deadlines failed", "chain", e.ChainName, "err", err)
		}

		newCIDs, err := e.Store.SelectNewCIDsToPin(ctx, e.ChainID, int64(bn))
		if err != nil {
			log.Error("reconcile: select new cids failed", "chain", e.ChainName, "err", err)
			sleep(ctx, interval)
			continue
		}

		for _, c := range newCIDs {
			for _, node := range e.Nodes {
				go e.pinToNode(node, c.CID, c.EndBlock, true)
			}
		}

		sleep(ctx, interval)
	}
}

// retryLoop is spec.md §4.3.2.
func (e *Engine) retryLoop(ctx context.Context) {
	interval := secInterval(e.RetryFailedCidsSec)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bn, ok := e.Runtime.LatestBlock()
		if !ok {
			sleep(ctx, interval)
			continue
		}

		if err := e.Store.DeleteExpiredFailedPins(ctx, e.ChainID, int64(bn)); err != nil {
			log.Error("reconcile: delete expired failed pins failed", "chain", e.ChainName, "err", err)
		}

		targets, err := e.Store.SelectFailedPins(ctx, e.ChainID, int64(bn))
		if err != nil {
			log.Error("reconcile: select failed pins failed", "chain", e.ChainName, "err", err)
			sleep(ctx, interval)
			continue
		}

		for _, t := range targets {
			go e.pinToNodeByName(t.Node, t.CID, t.EndBlock, false)
		}

		sleep(ctx, interval)
	}
}

// unpinLoop is spec.md §4.3.3.
func (e *Engine) unpinLoop(ctx context.Context) {
	interval := secInterval(e.UpdateNodesSec)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bn, ok := e.Runtime.LatestBlock()
		if !ok {
			sleep(ctx, interval)
			continue
		}

		if err := e.Store.DeleteSharedExpiredPinned(ctx, e.ChainID, int64(bn)); err != nil {
			log.Error("reconcile: delete shared expired pinned failed", "chain", e.ChainName, "err", err)
		}

		targets, err := e.Store.SelectLocalExpiredNotSharedPinned(ctx, e.ChainID, int64(bn))
		if err != nil {
			log.Error("reconcile: select unpin candidates failed", "chain", e.ChainName, "err", err)
			sleep(ctx, interval)
			continue
		}

		for _, t := range targets {
			go e.unpinFromNode(t.Node, t.CID, t.EndBlock)
		}

		sleep(ctx, interval)
	}
}

// pinToNode is the fan-out-per-node helper for the pin loop: every
// configured node gets a pin attempt for this CID, each a detached
// goroutine that does not block the loop's next cycle, matching
// ipfs_watcher.rs's tokio::spawn around pin_cid_to_node.
func (e *Engine) pinToNode(node ipfs.Node, cid string, endBlock int64, storeFailed bool) {
	e.attemptPin(node, cid, endBlock, storeFailed)
}

// pinToNodeByName resolves the node by API URL for the retry loop,
// which only has the node's stored identity (its api_url), not the
// full ipfs.Node.
func (e *Engine) pinToNodeByName(nodeURL, cid string, endBlock int64, storeFailed bool) {
	for _, n := range e.Nodes {
		if n.APIURL == nodeURL {
			e.attemptPin(n, cid, endBlock, storeFailed)
			return
		}
	}
	log.Warn("reconcile: retry target node no longer configured", "node", nodeURL, "cid", cid)
}

func (e *Engine) attemptPin(node ipfs.Node, cid string, endBlock int64, storeFailed bool) {
	ctx := context.Background()
	if err := e.IPFS.Pin(ctx, node, cid); err != nil {
		log.Error("reconcile: pin failed", "chain", e.ChainName, "node", node.APIURL, "cid", cid, "err", err)
		if storeFailed {
			if ierr := e.Store.InsertFailedPin(ctx, e.ChainID, node.APIURL, cid, endBlock); ierr != nil {
				log.Error("reconcile: recording failed pin failed", "err", ierr)
			}
		}
		return
	}
	if err := e.Store.InsertPinned(ctx, e.ChainID, node.APIURL, cid, endBlock); err != nil {
		log.Error("reconcile: recording pinned cid failed", "err", err)
	}
}

func (e *Engine) unpinFromNode(nodeURL, cid string, endBlock int64) {
	ctx := context.Background()
	var node ipfs.Node
	found := false
	for _, n := range e.Nodes {
		if n.APIURL == nodeURL {
			node = n
			found = true
			break
		}
	}
	if !found {
		node = ipfs.Node{APIURL: nodeURL}
	}

	if err := e.IPFS.Unpin(ctx, node, cid); err != nil {
		log.Error("reconcile: unpin failed", "chain", e.ChainName, "node", nodeURL, "cid", cid, "err", err)
		return
	}
	if err := e.Store.DeletePinned(ctx, e.ChainID, nodeURL, cid, endBlock); err != nil {
		log.Error("reconcile: deleting pinned row after unpin failed", "err", err)
	}
}
