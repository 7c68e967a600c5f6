package chain

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/anspar/hosq/internal/monitoring"
	"github.com/anspar/hosq/internal/store"
)

// EventStore is the subset of internal/store.Store the watcher needs
// to resume and apply decoded events, kept narrow so tests can fake it
// without a real pool.
type EventStore interface {
	ResumeBlock(ctx context.Context, chainID, startBlock int64, table string) (int64, error)
	InsertValidBlock(ctx context.Context, v store.ValidBlock) error
	UpsertProvider(ctx context.Context, p store.Provider) error
	UpdateProviderBlockPrice(ctx context.Context, chainID, providerID, priceGwei, updateBlock int64) error
	UpdateProviderApiURL(ctx context.Context, chainID, providerID int64, apiURL string, updateBlock int64) error
	UpdateProviderOwner(ctx context.Context, chainID, providerID int64, owner string, updateBlock int64) error
	UpdateProviderName(ctx context.Context, chainID, providerID int64, name string, updateBlock int64) error
}

// Watcher ingests one event kind for one chain: historical backfill
// then live tail, exactly spec.md §4.2's single cursor loop.
type Watcher struct {
	Runtime        *Runtime
	Store          EventStore
	Monitor        *monitoring.Store
	ContractAddr   common.Address
	StartBlock     int64
	BatchSize      int64
	SkipOld        bool
	LogUpdateSec   uint64
	ProviderID     int64
	Spec           eventSpec
}

// Run is the single cursor loop described in spec.md §4.2 steps 1-5.
// A decode or store error is fatal only to this goroutine: it logs and
// returns, it never panics the process.
func (w *Watcher) Run(ctx context.Context) {
	start, err := w.Store.ResumeBlock(ctx, w.Runtime.ChainID, w.StartBlock, w.Spec.table)
	if err != nil {
		log.Warn("watcher: resume block lookup failed, using configured start", "event", w.Spec.name, "chain", w.Runtime.ChainName, "err", err)
		start = w.StartBlock
	}
	cursor := start
	interval := time.Duration(w.LogUpdateSec) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bn, ok := w.Runtime.LatestBlock()
		if !ok {
			sleep(ctx, interval)
			continue
		}
		signed := int64(bn)

		if w.SkipOld && signed-cursor > w.BatchSize {
			cursor = signed - w.BatchSize
		}
		if cursor >= signed {
			sleep(ctx, interval)
			continue
		}

		to := cursor + w.BatchSize
		if to > signed {
			to = signed
		}

		logs, err := w.Runtime.Client().FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: big.NewInt(cursor),
			ToBlock:   big.NewInt(to),
			Addresses: []common.Address{w.ContractAddr},
			Topics:    [][]common.Hash{{w.Spec.Topic()}},
		})
		if err != nil {
			log.Error("watcher: filter logs failed", "event", w.Spec.name, "chain", w.Runtime.ChainName, "err", err)
			sleep(ctx, interval)
			continue
		}

		for _, lg := range logs {
			decoded, err := w.Spec.Decode(lg)
			if err != nil {
				log.Error("watcher: decode failed, terminating watcher", "event", w.Spec.name, "chain", w.Runtime.ChainName, "err", err)
				return
			}
			if err := w.apply(ctx, decoded, int64(lg.BlockNumber)); err != nil {
				log.Error("watcher: store apply failed, terminating watcher", "event", w.Spec.name, "chain", w.Runtime.ChainName, "err", err)
				return
			}
			w.Monitor.RecordEvent(w.Runtime.ChainID, w.Spec.name, lg.BlockNumber, time.Now())
		}

		cursor = to
	}
}

func (w *Watcher) apply(ctx context.Context, ev DecodedEvent, updateBlock int64) error {
	switch ev.Kind {
	case KindUpdateValidBlock:
		if ev.ProviderID != w.ProviderID {
			return nil
		}
		return w.Store.InsertValidBlock(ctx, store.ValidBlock{
			ChainID:     w.Runtime.ChainID,
			Donor:       ev.Donor,
			CID:         ev.CID,
			UpdateBlock: updateBlock,
			EndBlock:    ev.EndBlock,
		})
	case KindAddProvider:
		return w.Store.UpsertProvider(ctx, store.Provider{
			ChainID:        w.Runtime.ChainID,
			ProviderID:     ev.ProviderID,
			OwnerAddress:   ev.OwnerAddress,
			BlockPriceGwei: WeiToGwei(ev.BlockPriceWei),
			APIURL:         ev.APIURL,
			Name:           ev.Name,
			UpdateBlock:    updateBlock,
		})
	case KindUpdateProviderBlockPrice:
		return w.Store.UpdateProviderBlockPrice(ctx, w.Runtime.ChainID, ev.ProviderID, WeiToGwei(ev.PriceWei), updateBlock)
	case KindUpdateProviderApiURL:
		return w.Store.UpdateProviderApiURL(ctx, w.Runtime.ChainID, ev.ProviderID, ev.APIURL, updateBlock)
	case KindUpdateProviderAddress:
		return w.Store.UpdateProviderOwner(ctx, w.Runtime.ChainID, ev.ProviderID, ev.NewOwner, updateBlock)
	case KindUpdateProviderName:
		return w.Store.UpdateProviderName(ctx, w.Runtime.ChainID, ev.ProviderID, ev.Name, updateBlock)
	}
	return nil
}

// SpawnWatchers starts one goroutine per configured event kind for
// this runtime, the table-driven realization of DESIGN NOTES §9's
// "macro-expanded parallel watchers".
func SpawnWatchers(ctx context.Context, r *Runtime, s EventStore, mon *monitoring.Store, contractAddr common.Address, startBlock, batchSize int64, skipOld bool, logUpdateSec uint64, providerID int64) {
	for _, spec := range eventSpecs {
		w := &Watcher{
			Runtime:      r,
			Store:        s,
			Monitor:      mon,
			ContractAddr: contractAddr,
			StartBlock:   startBlock,
			BatchSize:    batchSize,
			SkipOld:      skipOld,
			LogUpdateSec: logUpdateSec,
			ProviderID:   providerID,
			Spec:         spec,
		}
		go w.Run(ctx)
	}
}
