package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind tags which of the six on-chain event kinds a DecodedEvent
// carries, per DESIGN NOTES §9's "tagged event variants".
type Kind int

const (
	KindUpdateValidBlock Kind = iota
	KindAddProvider
	KindUpdateProviderBlockPrice
	KindUpdateProviderApiURL
	KindUpdateProviderAddress
	KindUpdateProviderName
)

// DecodedEvent is the tagged union one decoder produces: Kind selects
// which of the payload fields are meaningful.
type DecodedEvent struct {
	Kind Kind

	// UpdateValidBlock
	Donor      string
	EndBlock   int64
	ProviderID int64
	CID        string

	// AddProvider
	OwnerAddress   string
	BlockPriceWei  *big.Int
	APIURL         string
	Name           string

	// UpdateProviderBlockPrice
	PriceWei *big.Int

	// UpdateProviderAddress
	NewOwner string
}

// eventSpec names one event kind's signature, its table (for
// resume-from-block), a minimum payload length guard and a decode
// function. One goroutine is spawned per (chain, eventSpec) pair —
// DESIGN NOTES §9's "macro-expanded parallel watchers" realized as a
// table-driven loop instead of per-kind hand-written goroutines.
type eventSpec struct {
	name       string
	signature  string
	table      string
	minLen     int
	args       abi.Arguments
	decode     func(args abi.Arguments, data []byte) (DecodedEvent, error)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("building abi type %q: %v", t, err))
	}
	return typ
}

func arg(t string) abi.Argument {
	return abi.Argument{Type: mustType(t)}
}

// eventSpecs is the table every watcher goroutine is spawned from.
// Field orders are the Solidity parameter lists decoded via standard
// ABI rules (spec.md §4.2), not the original Rust implementation's
// manual byte-slicing in original_source/worker/src/db.rs.
var eventSpecs = []eventSpec{
	{
		name:      "UpdateValidBlock",
		signature: "UpdateValidBlock(address,uint256,uint256,string)",
		table:     "event_update_valid_block",
		minLen:    96,
		args:      abi.Arguments{arg("address"), arg("uint256"), arg("uint256"), arg("string")},
		decode:    decodeUpdateValidBlock,
	},
	{
		name:      "AddProvider",
		signature: "AddProvider(address,uint256,uint256,string,string)",
		table:     "event_add_provider",
		minLen:    96,
		args:      abi.Arguments{arg("address"), arg("uint256"), arg("uint256"), arg("string"), arg("string")},
		decode:    decodeAddProvider,
	},
	{
		name:      "UpdateProviderBlockPrice",
		signature: "UpdateProviderBlockPrice(uint256,uint256)",
		table:     "event_add_provider",
		minLen:    64,
		args:      abi.Arguments{arg("uint256"), arg("uint256")},
		decode:    decodeUpdateProviderBlockPrice,
	},
	{
		name:      "UpdateProviderApiUrl",
		signature: "UpdateProviderApiUrl(uint256,string)",
		table:     "event_add_provider",
		minLen:    64,
		args:      abi.Arguments{arg("uint256"), arg("string")},
		decode:    decodeUpdateProviderApiURL,
	},
	{
		name:      "UpdateProviderAddress",
		signature: "UpdateProviderAddress(uint256,address)",
		table:     "event_add_provider",
		minLen:    64,
		args:      abi.Arguments{arg("uint256"), arg("address")},
		decode:    decodeUpdateProviderAddress,
	},
	{
		name:      "UpdateProviderName",
		signature: "UpdateProviderName(uint256,string)",
		table:     "event_add_provider",
		minLen:    64,
		args:      abi.Arguments{arg("uint256"), arg("string")},
		decode:    decodeUpdateProviderName,
	},
}

// Topic is the Keccak-256 hash of the event signature, used as the
// filter topic and as the first entry in a matching log's Topics.
func (e eventSpec) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(e.signature))
}

// Decode validates the minimum payload length and then ABI-decodes the
// log's data according to this event's argument list.
func (e eventSpec) Decode(lg types.Log) (DecodedEvent, error) {
	if len(lg.Data) < e.minLen {
		return DecodedEvent{}, fmt.Errorf("%s: data length %d below minimum %d", e.name, len(lg.Data), e.minLen)
	}
	return e.decode(e.args, lg.Data)
}

func unpack(args abi.Arguments, data []byte) ([]interface{}, error) {
	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("abi unpack: %w", err)
	}
	return values, nil
}

func decodeUpdateValidBlock(args abi.Arguments, data []byte) (DecodedEvent, error) {
	v, err := unpack(args, data)
	if err != nil {
		return DecodedEvent{}, err
	}
	donor := v[0].(common.Address)
	endBlock := v[1].(*big.Int)
	providerID := v[2].(*big.Int)
	cid := v[3].(string)

	return DecodedEvent{
		Kind:       KindUpdateValidBlock,
		Donor:      strings.ToLower(donor.Hex()),
		EndBlock:   endBlock.Int64(),
		ProviderID: providerID.Int64(),
		CID:        cid,
	}, nil
}

func decodeAddProvider(args abi.Arguments, data []byte) (DecodedEvent, error) {
	v, err := unpack(args, data)
	if err != nil {
		return DecodedEvent{}, err
	}
	owner := v[0].(common.Address)
	providerID := v[1].(*big.Int)
	priceWei := v[2].(*big.Int)
	apiURL := v[3].(string)
	name := v[4].(string)

	return DecodedEvent{
		Kind:          KindAddProvider,
		OwnerAddress:  strings.ToLower(owner.Hex()),
		ProviderID:    providerID.Int64(),
		BlockPriceWei: priceWei,
		APIURL:        apiURL,
		Name:          name,
	}, nil
}

func decodeUpdateProviderBlockPrice(args abi.Arguments, data []byte) (DecodedEvent, error) {
	v, err := unpack(args, data)
	if err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Kind:       KindUpdateProviderBlockPrice,
		ProviderID: v[0].(*big.Int).Int64(),
		PriceWei:   v[1].(*big.Int),
	}, nil
}

func decodeUpdateProviderApiURL(args abi.Arguments, data []byte) (DecodedEvent, error) {
	v, err := unpack(args, data)
	if err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Kind:       KindUpdateProviderApiURL,
		ProviderID: v[0].(*big.Int).Int64(),
		APIURL:     v[1].(string),
	}, nil
}

func decodeUpdateProviderAddress(args abi.Arguments, data []byte) (DecodedEvent, error) {
	v, err := unpack(args, data)
	if err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Kind:       KindUpdateProviderAddress,
		ProviderID: v[0].(*big.Int).Int64(),
		NewOwner:   strings.ToLower(v[1].(common.Address).Hex()),
	}, nil
}

func decodeUpdateProviderName(args abi.Arguments, data []byte) (DecodedEvent, error) {
	v, err := unpack(args, data)
	if err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Kind:       KindUpdateProviderName,
		ProviderID: v[0].(*big.Int).Int64(),
		Name:       v[1].(string),
	}, nil
}

// WeiToGwei truncates wei to gwei, matching spec.md §4.2's
// "block_price_gwei is wei / 10⁹ with integer truncation".
func WeiToGwei(wei *big.Int) int64 {
	gwei := new(big.Int).Div(wei, big.NewInt(1_000_000_000))
	return gwei.Int64()
}
