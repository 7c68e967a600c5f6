package store

import "context"

// schema creates the four tables this system persists to, the way
// geth-17-indexer's sqlite demo creates its own table at startup: no
// separate migration tool, just idempotent DDL run once on connect.
const schema = `
CREATE TABLE IF NOT EXISTS event_update_valid_block (
	chain_id      BIGINT NOT NULL,
	donor         TEXT   NOT NULL,
	cid           TEXT   NOT NULL,
	update_block  BIGINT NOT NULL,
	end_block     BIGINT NOT NULL,
	manual_add    BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (chain_id, donor, cid, update_block, end_block, manual_add)
);

CREATE TABLE IF NOT EXISTS event_add_provider (
	chain_id         BIGINT NOT NULL,
	provider_id      BIGINT NOT NULL,
	owner_address    TEXT   NOT NULL,
	block_price_gwei BIGINT NOT NULL DEFAULT 0,
	api_url          TEXT   NOT NULL DEFAULT '',
	name             TEXT   NOT NULL DEFAULT '',
	update_block     BIGINT NOT NULL,
	PRIMARY KEY (chain_id, provider_id)
);

CREATE TABLE IF NOT EXISTS pinned_cids (
	chain_id  BIGINT NOT NULL,
	node      TEXT   NOT NULL,
	cid       TEXT   NOT NULL,
	end_block BIGINT NOT NULL,
	PRIMARY KEY (chain_id, node, cid)
);

CREATE TABLE IF NOT EXISTS failed_pins (
	chain_id  BIGINT NOT NULL,
	node      TEXT   NOT NULL,
	cid       TEXT   NOT NULL,
	end_block BIGINT NOT NULL,
	PRIMARY KEY (chain_id, node, cid, end_block)
);
`

// Migrate runs the schema DDL. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
