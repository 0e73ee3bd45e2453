package store

import (
	"fmt"
	"time"

	"github.com/philippgille/gokv"
)

type CycleStatus string

const (
	CycleStarted   CycleStatus = "started"
	CycleProved    CycleStatus = "proved"
	CycleSubmitted CycleStatus = "submitted"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
)

// Done reports whether no further transition is expected.
func (s CycleStatus) Done() bool {
	return s == CycleCompleted || s == CycleFailed
}

// CycleRecord is the persisted outcome of one proof submission cycle. ID is the
// digest of the cycle's proof request.
type CycleRecord struct {
	ID        string      `json:"id"`
	Status    CycleStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	HeadBlock      uint64 `json:"head_block"`
	FromBlock      uint64 `json:"from_block"`
	SwapsFound     int    `json:"swaps_found"`
	SwapsSelected  int    `json:"swaps_selected"`
	TotalVolume    string `json:"total_volume"`
	ExpectedOutput string `json:"expected_output,omitempty"`

	QueryHash string `json:"query_hash,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Fee       string `json:"fee,omitempty"`
	Calldata  string `json:"calldata,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`

	Err string `json:"err,omitempty"`
}

const (
	cycleKeyPrefix = "cycle-"
	latestCycleKey = "latest-cycle"
)

// CycleStore keeps cycle records in any gokv.Store, plus a pointer to the most
// recently saved one.
type CycleStore struct {
	kv gokv.Store
}

func NewCycleStore(kv gokv.Store) *CycleStore {
	return &CycleStore{kv: kv}
}

func cycleKey(id string) string {
	return cycleKeyPrefix + id
}

func (s *CycleStore) Save(rec *CycleRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("cycle record has no id")
	}
	if err := s.kv.Set(cycleKey(rec.ID), rec); err != nil {
		return fmt.Errorf("failed to save cycle %s: %w", rec.ID, err)
	}
	if err := s.kv.Set(latestCycleKey, rec.ID); err != nil {
		return fmt.Errorf("failed to save latest cycle pointer: %w", err)
	}
	return nil
}

// Update rewrites a record without moving the latest pointer.
func (s *CycleStore) Update(rec *CycleRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("cycle record has no id")
	}
	if err := s.kv.Set(cycleKey(rec.ID), rec); err != nil {
		return fmt.Errorf("failed to update cycle %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns found=false if there is no record with the id.
func (s *CycleStore) Get(id string) (rec *CycleRecord, found bool, err error) {
	rec = new(CycleRecord)
	found, err = s.kv.Get(cycleKey(id), rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cycle %s: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	return rec, true, nil
}

func (s *CycleStore) Latest() (*CycleRecord, bool, error) {
	var id string
	found, err := s.kv.Get(latestCycleKey, &id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get latest cycle pointer: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return s.Get(id)
}

func (s *CycleStore) Delete(id string) error {
	if err := s.kv.Delete(cycleKey(id)); err != nil {
		return fmt.Errorf("failed to delete cycle %s: %w", id, err)
	}
	var latest string
	found, err := s.kv.Get(latestCycleKey, &latest)
	if err != nil {
		return fmt.Errorf("failed to get latest cycle pointer: %w", err)
	}
	if found && latest == id {
		return s.kv.Delete(latestCycleKey)
	}
	return nil
}

func (s *CycleStore) Close() error {
	return s.kv.Close()
}
