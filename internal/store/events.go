package store

import (
	"context"
	"fmt"
)

// resumableTables whitelists the event tables ResumeBlock may query,
// since the table name can't be a bind parameter.
var resumableTables = map[string]bool{
	"event_update_valid_block": true,
	"event_add_provider":       true,
}

// ValidBlock is one decoded UpdateValidBlock declaration, ready for
// idempotent insertion.
type ValidBlock struct {
	ChainID     int64
	Donor       string
	CID         string
	UpdateBlock int64
	EndBlock    int64
	ManualAdd   bool
}

// InsertValidBlock records a declared pinning obligation. Idempotent
// against replayed logs: the primary key is the full tuple, so a
// duplicate log delivery is a silent no-op, mirroring
// original_source/worker/src/db.rs's "ON CONFLICT ... DO NOTHING".
func (s *Store) InsertValidBlock(ctx context.Context, v ValidBlock) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_update_valid_block (chain_id, donor, cid, update_block, end_block, manual_add)
		VALUES ($1, LOWER($2), $3, $4, $5, $6)
		ON CONFLICT (chain_id, donor, cid, update_block, end_block, manual_add) DO NOTHING
	`, v.ChainID, v.Donor, v.CID, v.UpdateBlock, v.EndBlock, v.ManualAdd)
	return err
}

// Provider is one row of the provider registry.
type Provider struct {
	ChainID        int64
	ProviderID     int64
	OwnerAddress   string
	BlockPriceGwei int64
	APIURL         string
	Name           string
	UpdateBlock    int64
}

// UpsertProvider handles AddProvider: insert a new registry row, or
// overwrite one with a newer update_block (the registry table has no
// separate per-field history, so AddProvider re-delivery just refreshes
// the row it already holds).
func (s *Store) UpsertProvider(ctx context.Context, p Provider) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_add_provider (chain_id, provider_id, owner_address, block_price_gwei, api_url, name, update_block)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7)
		ON CONFLICT (chain_id, provider_id) DO UPDATE SET
			owner_address = EXCLUDED.owner_address,
			block_price_gwei = EXCLUDED.block_price_gwei,
			api_url = EXCLUDED.api_url,
			name = EXCLUDED.name,
			update_block = EXCLUDED.update_block
		WHERE event_add_provider.update_block < EXCLUDED.update_block
	`, p.ChainID, p.ProviderID, p.OwnerAddress, p.BlockPriceGwei, p.APIURL, p.Name, p.UpdateBlock)
	return err
}

// UpdateProviderBlockPrice handles UpdateProviderBlockPrice.
func (s *Store) UpdateProviderBlockPrice(ctx context.Context, chainID, providerID, priceGwei, updateBlock int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE event_add_provider
		SET block_price_gwei = $1, update_block = $2
		WHERE chain_id = $3 AND provider_id = $4 AND update_block < $2
	`, priceGwei, updateBlock, chainID, providerID)
	return err
}

// UpdateProviderApiURL handles UpdateProviderApiUrl.
func (s *Store) UpdateProviderApiURL(ctx context.Context, chainID, providerID int64, apiURL string, updateBlock int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE event_add_provider
		SET api_url = $1, update_block = $2
		WHERE chain_id = $3 AND provider_id = $4 AND update_block < $2
	`, apiURL, updateBlock, chainID, providerID)
	return err
}

// UpdateProviderOwner handles UpdateProviderAddress.
func (s *Store) UpdateProviderOwner(ctx context.Context, chainID, providerID int64, owner string, updateBlock int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE event_add_provider
		SET owner_address = LOWER($1), update_block = $2
		WHERE chain_id = $3 AND provider_id = $4 AND update_block < $2
	`, owner, updateBlock, chainID, providerID)
	return err
}

// UpdateProviderName handles UpdateProviderName.
func (s *Store) UpdateProviderName(ctx context.Context, chainID, providerID int64, name string, updateBlock int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE event_add_provider
		SET name = $1, update_block = $2
		WHERE chain_id = $3 AND provider_id = $4 AND update_block < $2
	`, name, updateBlock, chainID, providerID)
	return err
}

// ResumeBlock returns the block to resume historical log scanning from
// for this chain and event table: the highest update_block seen so far
// in that table, or startBlock if nothing has been ingested yet.
// Grounded on original_source/worker/src/contract_watcher.rs's
// "SELECT MAX(update_block) FROM <table>" fallback. table must be one
// of the tables created in schema.go — each eventSpec resumes from its
// own table, since event_update_valid_block and event_add_provider
// advance independently.
func (s *Store) ResumeBlock(ctx context.Context, chainID, startBlock int64, table string) (int64, error) {
	if !resumableTables[table] {
		return 0, fmt.Errorf("resume block: unknown table %q", table)
	}
	var max *int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT MAX(update_block) FROM %s WHERE chain_id = $1
	`, table), chainID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if max == nil {
		return startBlock, nil
	}
	return *max, nil
}
