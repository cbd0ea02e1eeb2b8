// Package store persists exchange state (instruments, balances, resting
// orders, executed trades) in a cockroachdb/pebble database. Values are JSON;
// the write path is either a single synced Set or an atomic Batch when a
// match touches several records at once.
package store

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Acero160/DEX/pkg/dex/instrument"
	"github.com/Acero160/DEX/pkg/dex/orderbook"
)

// Store wraps the pebble database. Not self-locking: the exchange
// serializes all writes.
type Store struct {
	db *pebble.DB
}

// BalanceRecord is the persisted form of one (trader, ticker) balance.
type BalanceRecord struct {
	Trader common.Address `json:"trader"`
	Ticker string         `json:"ticker"`
	Amount *big.Int       `json:"amount"`
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:         pebble.NewCache(64 << 20),
		MemTableSize:  32 << 20,
		MaxOpenFiles:  1000,
		BytesPerSync:  512 << 10,
		LBaseMaxBytes: 64 << 20,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveInstrument persists one registered instrument.
func (s *Store) SaveInstrument(ins instrument.Instrument) error {
	data, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("marshal instrument: %w", err)
	}
	if err := s.db.Set(instrumentKey(ins.Ticker), data, pebble.Sync); err != nil {
		return fmt.Errorf("save instrument: %w", err)
	}
	return nil
}

// LoadInstruments scans every persisted instrument.
func (s *Store) LoadInstruments() ([]instrument.Instrument, error) {
	prefix := instrumentPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("instrument iter: %w", err)
	}
	defer iter.Close()

	var out []instrument.Instrument
	for iter.First(); iter.Valid(); iter.Next() {
		var ins instrument.Instrument
		if err := json.Unmarshal(iter.Value(), &ins); err != nil {
			return nil, fmt.Errorf("decode instrument %q: %w", iter.Key(), err)
		}
		out = append(out, ins)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("instrument scan: %w", err)
	}
	return out, nil
}

// SaveBalance persists one custodial balance.
func (s *Store) SaveBalance(trader common.Address, ticker string, amount *big.Int) error {
	rec := BalanceRecord{Trader: trader, Ticker: ticker, Amount: amount}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal balance: %w", err)
	}
	if err := s.db.Set(balanceKey(trader, ticker), data, pebble.Sync); err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

// LoadBalances scans every persisted balance.
func (s *Store) LoadBalances() ([]BalanceRecord, error) {
	prefix := balancePrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("balance iter: %w", err)
	}
	defer iter.Close()

	var out []BalanceRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec BalanceRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode balance %q: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("balance scan: %w", err)
	}
	return out, nil
}

// SaveOrder persists a resting order (also used to update Filled).
func (s *Store) SaveOrder(o *orderbook.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// LoadOrders returns all persisted orders in insertion (ID) order.
// Re-inserting them in that order reproduces every book exactly, since
// book position is a pure function of price and insertion sequence.
func (s *Store) LoadOrders() ([]*orderbook.Order, error) {
	prefix := orderPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("order iter: %w", err)
	}
	defer iter.Close()

	var out []*orderbook.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o orderbook.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("decode order %q: %w", iter.Key(), err)
		}
		out = append(out, &o)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("order scan: %w", err)
	}
	return out, nil
}

// SaveTrade appends one executed trade to the history.
func (s *Store) SaveTrade(t *orderbook.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if err := s.db.Set(tradeKey(t.Ticker, t.Timestamp, t.ID), data, pebble.NoSync); err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades for ticker, newest first.
func (s *Store) RecentTrades(ticker string, limit int) ([]*orderbook.Trade, error) {
	prefix := tradePrefix(ticker)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("trade iter: %w", err)
	}
	defer iter.Close()

	var out []*orderbook.Trade
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var t orderbook.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("decode trade %q: %w", iter.Key(), err)
		}
		out = append(out, &t)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("trade scan: %w", err)
	}
	return out, nil
}

// Batch groups the writes of one settlement so a match lands atomically:
// both balances, the maker order's new fill, and the trade record.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) SaveBalance(trader common.Address, ticker string, amount *big.Int) error {
	data, err := json.Marshal(BalanceRecord{Trader: trader, Ticker: ticker, Amount: amount})
	if err != nil {
		return err
	}
	return b.batch.Set(balanceKey(trader, ticker), data, nil)
}

func (b *Batch) SaveOrder(o *orderbook.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return b.batch.Set(orderKey(o.ID), data, nil)
}

func (b *Batch) SaveTrade(t *orderbook.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.batch.Set(tradeKey(t.Ticker, t.Timestamp, t.ID), data, nil)
}

func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *Batch) Close() error {
	return b.batch.Close()
}
