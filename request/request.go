// Package request assembles the receipts and storage slots of one proving
// cycle into a fixed-capacity proof request.
package request

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/brevis-network/brevis-iv-quickstart/swaps"
	"github.com/brevis-network/brevis-sdk/sdk"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gowebpki/jcs"
)

type Receipt struct {
	BlockNum uint64      `json:"block_num"`
	TxHash   common.Hash `json:"tx_hash"`
	Fields   []Field     `json:"fields"`
}

// Field selects one value out of a log in a receipt.
type Field struct {
	Contract common.Address `json:"contract"`
	// LogPos is the log's position in the receipt
	LogPos  uint        `json:"log_pos"`
	EventID common.Hash `json:"event_id"`
	IsTopic bool        `json:"is_topic"`
	// FieldIndex is the index in the log's topics if IsTopic, otherwise in the
	// RLP decoded data
	FieldIndex uint `json:"field_index"`
}

type Storage struct {
	BlockNum uint64         `json:"block_num"`
	Address  common.Address `json:"address"`
	Slot     common.Hash    `json:"slot"`
	Value    common.Hash    `json:"value"`
}

type ProofRequest struct {
	Receipts []Receipt `json:"receipts"`
	Storages []Storage `json:"storages"`
}

// Builder creates proof requests that fit a circuit allocation.
type Builder struct {
	MaxReceipts int
	MaxStorage  int
}

func NewBuilder(maxReceipts, maxStorage int) *Builder {
	return &Builder{MaxReceipts: maxReceipts, MaxStorage: maxStorage}
}

// Build adds one receipt per swap, exporting amount1, and one storage entry per
// slot read at blockNum. Order is preserved, so the circuit sees the first swap
// at index 0 and the first slot at index 0.
func (b *Builder) Build(pool common.Address, blockNum uint64, swapEvents []swaps.SwapEvent, slots []Storage) (*ProofRequest, error) {
	if len(swapEvents) > b.MaxReceipts {
		return nil, fmt.Errorf("%d swaps exceed the receipt allocation of %d", len(swapEvents), b.MaxReceipts)
	}
	if len(slots) > b.MaxStorage {
		return nil, fmt.Errorf("%d storage slots exceed the storage allocation of %d", len(slots), b.MaxStorage)
	}

	req := &ProofRequest{
		Receipts: make([]Receipt, 0, len(swapEvents)),
		Storages: make([]Storage, 0, len(slots)),
	}
	for _, e := range swapEvents {
		if e.Pool != pool {
			return nil, fmt.Errorf("swap in tx %s was emitted by %s, not pool %s", e.TxHash.Hex(), e.Pool.Hex(), pool.Hex())
		}
		if !e.LogPosResolved {
			return nil, fmt.Errorf("log position of swap in tx %s is not resolved", e.TxHash.Hex())
		}
		req.Receipts = append(req.Receipts, Receipt{
			BlockNum: e.BlockNumber,
			TxHash:   e.TxHash,
			Fields: []Field{{
				Contract:   pool,
				LogPos:     e.LogPos,
				EventID:    swaps.SwapEventID,
				IsTopic:    false,
				FieldIndex: swaps.Amount1FieldIndex,
			}},
		})
	}
	for _, s := range slots {
		s.BlockNum = blockNum
		req.Storages = append(req.Storages, s)
	}
	return req, nil
}

// Digest is the keccak256 hash of the request's canonical (RFC 8785) JSON
// encoding. Identical requests always have the same digest.
func (r *ProofRequest) Digest() (common.Hash, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return common.Hash{}, fmt.Errorf("json.Marshal err: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("jcs.Transform err: %w", err)
	}
	return crypto.Keccak256Hash(canonical), nil
}

// DataAdder is implemented by sdk.BrevisApp.
type DataAdder interface {
	AddReceipt(data sdk.ReceiptData, index ...int)
	AddStorage(data sdk.StorageData, index ...int)
}

// ApplyTo queues the request's data on a BrevisApp.
func (r *ProofRequest) ApplyTo(app DataAdder) {
	for _, rc := range r.Receipts {
		fields := make([]sdk.LogFieldData, 0, len(rc.Fields))
		for _, f := range rc.Fields {
			fields = append(fields, sdk.LogFieldData{
				LogPos:     f.LogPos,
				IsTopic:    f.IsTopic,
				FieldIndex: f.FieldIndex,
			})
		}
		app.AddReceipt(sdk.ReceiptData{
			TxHash: rc.TxHash,
			Fields: fields,
		})
	}
	for _, s := range r.Storages {
		app.AddStorage(sdk.StorageData{
			BlockNum: new(big.Int).SetUint64(s.BlockNum),
			Address:  s.Address,
			Slot:     s.Slot,
		})
	}
}

func (r *ProofRequest) NumReceipts() int { return len(r.Receipts) }
func (r *ProofRequest) NumStorages() int { return len(r.Storages) }
