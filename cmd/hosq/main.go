// Command hosq runs the multi-chain IPFS pinning coordinator: one
// chain connection, one set of event watchers and one reconciliation
// engine per configured chain, plus the shared read API and file
// proxy. Flag handling follows ethereum-mive-mive's cmd/mive/config.go
// (urfave/cli/v2, a single config-path argument) rather than the
// per-field flags geth-NN-*'s standalone tutorials use, since this
// system's settings live in one YAML file, not on the command line.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/anspar/hosq/internal/api"
	"github.com/anspar/hosq/internal/chain"
	"github.com/anspar/hosq/internal/config"
	"github.com/anspar/hosq/internal/ipfs"
	"github.com/anspar/hosq/internal/monitoring"
	"github.com/anspar/hosq/internal/proxy"
	"github.com/anspar/hosq/internal/reconcile"
	"github.com/anspar/hosq/internal/store"
)

func main() {
	app := &cli.App{
		Name:      "hosq",
		Usage:     "multi-chain IPFS pinning coordinator",
		ArgsUsage: "<config.yml>",
		Action:    run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one argument required: path to config.yml")
	}
	cfg, err := config.Load(c.Args().Get(0))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbURL, err := cfg.ResolveDatabaseURL()
	if err != nil {
		return err
	}
	st, err := store.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer st.Close()

	mon := monitoring.New()
	nodes := make([]ipfs.Node, 0, len(cfg.IPFSNodes))
	for _, n := range cfg.IPFSNodes {
		nodes = append(nodes, ipfs.Node{APIURL: n.APIURL, Gateway: n.Gateway, Login: n.Login, Password: n.Password})
	}
	ipfsClient := ipfs.New(nil)

	chains := newChainRegistry()

	if !cfg.OnlyAPI {
		for _, p := range cfg.Providers {
			rt, err := chain.NewRuntime(ctx, p)
			if err != nil {
				return fmt.Errorf("starting chain %s: %w", p.ChainName, err)
			}
			chains.add(rt, p.BlockTimeSec)

			go rt.Supervise(ctx, mon)
			chain.SpawnWatchers(ctx, rt, st, mon, common.HexToAddress(p.ContractAddress), p.StartBlock, p.BatchSize, p.SkipOld, p.LogUpdateSec, p.ProviderID)

			engine := &reconcile.Engine{
				ChainID:            rt.ChainID,
				ChainName:          rt.ChainName,
				Runtime:            rt,
				Store:              st,
				IPFS:               ipfsClient,
				Nodes:              nodes,
				UpdateNodesSec:     cfg.UpdateNodesSec,
				RetryFailedCidsSec: cfg.RetryFailedCidsSec,
			}
			go engine.Run(ctx)

			log.Info("hosq: chain started", "chain", p.ChainName, "chain_id", rt.ChainID, "contract", p.ContractAddress)
		}
	}

	srv := &api.Server{
		Store:       st,
		Monitor:     mon,
		IPFS:        ipfsClient,
		Nodes:       nodes,
		Chains:      chains,
		AdminSecret: cfg.AdminSecret,
	}
	px := proxy.New(nodes, nil)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mountProxy(srv.Handler(), px),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("hosq: listening", "addr", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// mountProxy adds the upload/download streaming routes alongside the
// read API's mux router, since the proxy's paths (/v0/file/upload,
// /ipfs/<path>) are outside gorilla/mux's registered set.
func mountProxy(apiHandler http.Handler, px *proxy.Proxy) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v0/file/upload", func(w http.ResponseWriter, r *http.Request) {
		dir := r.URL.Query().Get("dir") == "true"
		px.Upload(w, r, dir)
	})
	mux.Handle("/ipfs/", http.StripPrefix("/ipfs/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		px.Download(w, r, r.URL.Path)
	})))
	mux.Handle("/", apiHandler)
	return mux
}

// chainRegistry implements api.ChainBlockLookup across every
// configured chain's Runtime, since the read API addresses chains by
// id but each Runtime only knows its own latest block.
type chainRegistry struct {
	mu      sync.RWMutex
	byChain map[int64]chainEntry
}

type chainEntry struct {
	runtime      *chain.Runtime
	blockTimeSec uint64
}

func newChainRegistry() *chainRegistry {
	return &chainRegistry{byChain: make(map[int64]chainEntry)}
}

func (r *chainRegistry) add(rt *chain.Runtime, blockTimeSec uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChain[rt.ChainID] = chainEntry{runtime: rt, blockTimeSec: blockTimeSec}
}

func (r *chainRegistry) LatestBlock(chainID int64) (int64, uint64, bool) {
	r.mu.RLock()
	entry, ok := r.byChain[chainID]
	r.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	bn, ok := entry.runtime.LatestBlock()
	if !ok {
		return 0, entry.blockTimeSec, false
	}
	return int64(bn), entry.blockTimeSec, true
}
