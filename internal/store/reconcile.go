package store

import "context"

// CIDTarget names one (node, cid, end_block) the pin or unpin loop
// should act on.
type CIDTarget struct {
	CID      string
	EndBlock int64
	Node     string
}

// ExtendPinnedDeadlines raises end_block on pinned_cids rows whose
// backing obligation has since been extended, so a previously pinned
// CID doesn't get unpinned early just because the original declaration
// expired before a later one arrived. Grounded on
// ipfs_watcher.rs's pin_chain_cids first query+update pair, folded into
// a single UPDATE...FROM per spec.md's phrasing.
func (s *Store) ExtendPinnedDeadlines(ctx context.Context, chainID, bn int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pinned_cids pc
		SET end_block = euvb.end_block
		FROM event_update_valid_block euvb
		WHERE euvb.chain_id = pc.chain_id
		  AND pc.cid = euvb.cid
		  AND pc.end_block < euvb.end_block
		  AND euvb.end_block > $2
		  AND euvb.chain_id = $1
	`, chainID, bn)
	return err
}

// NewCIDToPin is a CID with no pinned_cids row yet, grouped to the
// maximum end_block across all its declarations.
type NewCIDToPin struct {
	CID      string
	EndBlock int64
}

// SelectNewCIDsToPin finds declared obligations past the current tip
// that have no corresponding pinned_cids row at all.
func (s *Store) SelectNewCIDsToPin(ctx context.Context, chainID, bn int64) ([]NewCIDToPin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT euvb.cid, MAX(euvb.end_block)
		FROM event_update_valid_block euvb
		LEFT JOIN pinned_cids pc ON euvb.chain_id = pc.chain_id AND euvb.cid = pc.cid
		WHERE euvb.end_block > $2 AND euvb.chain_id = $1 AND pc.cid IS NULL
		GROUP BY euvb.cid
	`, chainID, bn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NewCIDToPin
	for rows.Next() {
		var n NewCIDToPin
		if err := rows.Scan(&n.CID, &n.EndBlock); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// InsertPinned records a successful pin.
func (s *Store) InsertPinned(ctx context.Context, chainID int64, node, cid string, endBlock int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pinned_cids (chain_id, node, cid, end_block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id, node, cid) DO UPDATE SET end_block = GREATEST(pinned_cids.end_block, EXCLUDED.end_block)
	`, chainID, node, cid, endBlock)
	return err
}

// InsertFailedPin records a failed pin attempt for later retry.
func (s *Store) InsertFailedPin(ctx context.Context, chainID int64, node, cid string, endBlock int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_pins (chain_id, node, cid, end_block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id, node, cid, end_block) DO NOTHING
	`, chainID, node, cid, endBlock)
	return err
}

// DeleteExpiredFailedPins drops failed_pins rows whose deadline has
// already passed; they're no longer worth retrying.
func (s *Store) DeleteExpiredFailedPins(ctx context.Context, chainID, bn int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM failed_pins WHERE end_block <= $2 AND chain_id = $1
	`, chainID, bn)
	return err
}

// SelectFailedPins lists remaining retry candidates.
func (s *Store) SelectFailedPins(ctx context.Context, chainID, bn int64) ([]CIDTarget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT node, cid, end_block FROM failed_pins WHERE end_block > $2 AND chain_id = $1
	`, chainID, bn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CIDTarget
	for rows.Next() {
		var t CIDTarget
		if err := rows.Scan(&t.Node, &t.CID, &t.EndBlock); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteSharedExpiredPinned drops this chain's expired pinned_cids rows
// for CIDs that are also held by another chain, without issuing an
// unpin call — the other chain still wants the CID held. Implements
// Open Question (a) literally: the self-join condition is
// "p1.chain_id != p2.chain_id AND p1.cid = p2.cid" here (the DELETE
// variant), matching ipfs_watcher.rs's unpin_cids first statement.
func (s *Store) DeleteSharedExpiredPinned(ctx context.Context, chainID, bn int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pinned_cids p1
		USING pinned_cids p2
		WHERE p1.chain_id = $1
		  AND p1.end_block <= $2
		  AND p1.chain_id != p2.chain_id
		  AND p1.cid = p2.cid
	`, chainID, bn)
	return err
}

// SelectLocalExpiredNotSharedPinned lists this chain's expired
// pinned_cids rows that are NOT held by any other chain, i.e. genuine
// unpin candidates. Open Question (a) is resolved as an anti-join: a
// row qualifies only when no pinned_cids row of another chain has the
// same CID, so a CID held by this chain alone is unpinned once it
// expires, and a CID another chain still holds is left to
// DeleteSharedExpiredPinned — see DESIGN.md.
func (s *Store) SelectLocalExpiredNotSharedPinned(ctx context.Context, chainID, bn int64) ([]CIDTarget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p1.cid, p1.end_block, p1.node
		FROM pinned_cids p1
		WHERE p1.chain_id = $1 AND p1.end_block <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM pinned_cids p2
			WHERE p2.chain_id != p1.chain_id AND p2.cid = p1.cid
		  )
	`, chainID, bn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CIDTarget
	for rows.Next() {
		var t CIDTarget
		if err := rows.Scan(&t.CID, &t.EndBlock, &t.Node); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeletePinned removes a pinned_cids row after a successful unpin.
func (s *Store) DeletePinned(ctx context.Context, chainID int64, node, cid string, endBlock int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pinned_cids WHERE chain_id = $1 AND node = $2 AND cid = $3 AND end_block = $4
	`, chainID, node, cid, endBlock)
	return err
}
