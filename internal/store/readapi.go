package store

import "context"

// PinnedCID is one row of the /v0/cid/pinned response.
type PinnedCID struct {
	CID             string
	Donor           string
	UpdateBlock     int64
	EndBlock        int64
	NodeCount       int64
	FailedNodeCount int64
}

// SelectPinnedForDonor backs GET /v0/cid/pinned?address=&chain_id=,
// ported from original_source/src/routes/handlers.rs's get_cids query
// verbatim (sorted failed-first, fewest-pins-first, soonest-deadline
// first, capped at 100).
func (s *Store) SelectPinnedForDonor(ctx context.Context, chainID int64, address string, bn int64) ([]PinnedCID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT euvb.cid, euvb.donor, MIN(euvb.update_block) ub,
			COALESCE(
				(SELECT MAX(end_block) FROM pinned_cids WHERE chain_id = $1 AND cid = euvb.cid),
				MAX(euvb.end_block)) AS eb,
			(SELECT count(pc.node) FROM pinned_cids pc
				WHERE pc.chain_id = $1 AND pc.cid = euvb.cid AND (pc.end_block >= $3 OR pc.end_block = -1)) AS c,
			(SELECT count(fc.node) FROM failed_pins fc
				WHERE fc.chain_id = $1 AND fc.cid = euvb.cid AND fc.end_block >= $3) AS fc
		FROM event_update_valid_block euvb
		WHERE euvb.chain_id = $1 AND euvb.donor = LOWER($2)
		GROUP BY euvb.cid, euvb.donor
		ORDER BY fc DESC, c ASC, eb ASC LIMIT 100
	`, chainID, address, bn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PinnedCID
	for rows.Next() {
		var p PinnedCID
		if err := rows.Scan(&p.CID, &p.Donor, &p.UpdateBlock, &p.EndBlock, &p.NodeCount, &p.FailedNodeCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProviderInfo is one row of the provider registry response.
type ProviderInfo struct {
	ProviderID     int64
	BlockPriceGwei int64
	Name           string
	APIURL         string
	UpdateBlock    *int64
}

// SelectProviders backs GET /v0/providers?chain_id=.
func (s *Store) SelectProviders(ctx context.Context, chainID int64) ([]ProviderInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id, block_price_gwei, name, api_url
		FROM event_add_provider
		WHERE chain_id = $1
		ORDER BY block_price_gwei ASC, name ASC LIMIT 100
	`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderInfo
	for rows.Next() {
		var p ProviderInfo
		if err := rows.Scan(&p.ProviderID, &p.BlockPriceGwei, &p.Name, &p.APIURL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SelectProvider backs GET /v0/provider?chain_id=&address=.
func (s *Store) SelectProvider(ctx context.Context, chainID int64, address string) ([]ProviderInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id, block_price_gwei, name, api_url, update_block
		FROM event_add_provider
		WHERE chain_id = $1 AND owner_address = LOWER($2)
		ORDER BY name ASC LIMIT 100
	`, chainID, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderInfo
	for rows.Next() {
		var p ProviderInfo
		var ub int64
		if err := rows.Scan(&p.ProviderID, &p.BlockPriceGwei, &p.Name, &p.APIURL, &ub); err != nil {
			return nil, err
		}
		p.UpdateBlock = &ub
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsPinned backs GET /v0/cid/pinned/<cid>: the node count currently
// holding this CID, across every chain.
func (s *Store) IsPinned(ctx context.Context, cid string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(node) FROM pinned_cids WHERE cid = $1`, cid).Scan(&count)
	return count, err
}

// CIDInfoRow is one group of the /v0/cid/info full-outer-join result.
// PinnedChainID/FailedChainID are nil when that side of the join has
// no match for this group, per Open Question (b).
type CIDInfoRow struct {
	PinnedChainID  *int64
	PinnedNodes    int64
	PinnedEndBlock *int64
	FailedChainID  *int64
	FailedNodes    int64
	FailedEndBlock *int64
}

// CIDInfo backs GET /v0/cid/info?cid=, ported verbatim from
// handlers.rs's cid_info query: a full outer join grouped by both
// sides' chain_id, so a CID pinned on one chain and merely
// failing-to-pin on another shows up as two rows.
func (s *Store) CIDInfo(ctx context.Context, cid string) ([]CIDInfoRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pc.chain_id, count(pc.node), max(pc.end_block),
			fp.chain_id, count(fp.node), max(fp.end_block)
		FROM pinned_cids pc
		FULL OUTER JOIN failed_pins fp ON pc.cid = fp.cid AND pc.chain_id = fp.chain_id
		WHERE pc.cid = $1 OR fp.cid = $1
		GROUP BY pc.chain_id, fp.chain_id
	`, cid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CIDInfoRow
	for rows.Next() {
		var r CIDInfoRow
		if err := rows.Scan(&r.PinnedChainID, &r.PinnedNodes, &r.PinnedEndBlock, &r.FailedChainID, &r.FailedNodes, &r.FailedEndBlock); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CIDExists reports whether any declaration already covers this CID,
// used by the admin pin-cid shortcut to avoid re-declaring a CID that
// is already tracked (unless the caller is an admin, who may always
// force a fresh −1 declaration).
func (s *Store) CIDExists(ctx context.Context, cid string) (bool, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM event_update_valid_block WHERE cid = $1`, cid).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
