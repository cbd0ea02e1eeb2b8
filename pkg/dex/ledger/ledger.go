// Package ledger tracks custodial balances per (trader, ticker). Balances
// are created implicitly at zero and can never go negative: a debit that
// would overdraw fails before any state is written.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Acero160/DEX/pkg/dex/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrExternalTransfer wraps a token-interface failure surfaced through
	// the exchange deposit/withdraw path.
	ErrExternalTransfer = errors.New("external transfer failed")
)

// Ledger is a map cache over the pebble store. Not self-locking: the
// exchange serializes every call.
type Ledger struct {
	balances map[common.Address]map[string]*big.Int
	store    *store.Store
}

// NewLedger builds a ledger backed by st, rehydrating persisted balances.
// A nil store keeps the ledger purely in memory (tests).
func NewLedger(st *store.Store) (*Ledger, error) {
	l := &Ledger{
		balances: make(map[common.Address]map[string]*big.Int),
		store:    st,
	}

	if st != nil {
		recs, err := st.LoadBalances()
		if err != nil {
			return nil, fmt.Errorf("load balances: %w", err)
		}
		for _, rec := range recs {
			l.set(rec.Trader, rec.Ticker, rec.Amount)
		}
	}

	return l, nil
}

// Balance returns the custodial balance, zero for unseen keys. The result
// is a copy; callers cannot mutate ledger state through it.
func (l *Ledger) Balance(trader common.Address, ticker string) *big.Int {
	if row, ok := l.balances[trader]; ok {
		if amt, ok := row[ticker]; ok {
			return new(big.Int).Set(amt)
		}
	}
	return new(big.Int)
}

// Credit adds amount to the balance and persists the new value.
func (l *Ledger) Credit(trader common.Address, ticker string, amount *big.Int) error {
	bal := l.entry(trader, ticker)
	bal.Add(bal, amount)
	return l.persist(trader, ticker, bal)
}

// Debit subtracts amount from the balance, failing without side effects
// if the balance is short.
func (l *Ledger) Debit(trader common.Address, ticker string, amount *big.Int) error {
	bal := l.entry(trader, ticker)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s %s holds %s, needs %s", ErrInsufficientBalance, trader.Hex(), ticker, bal, amount)
	}
	bal.Sub(bal, amount)
	return l.persist(trader, ticker, bal)
}

// Stage returns a pending balance mutation set for multi-entry settlement.
func (l *Ledger) Stage() *Stage {
	return &Stage{ledger: l, deltas: make(map[common.Address]map[string]*big.Int)}
}

func (l *Ledger) entry(trader common.Address, ticker string) *big.Int {
	if l.balances[trader] == nil {
		l.balances[trader] = make(map[string]*big.Int)
	}
	if l.balances[trader][ticker] == nil {
		l.balances[trader][ticker] = new(big.Int)
	}
	return l.balances[trader][ticker]
}

func (l *Ledger) set(trader common.Address, ticker string, amount *big.Int) {
	if l.balances[trader] == nil {
		l.balances[trader] = make(map[string]*big.Int)
	}
	l.balances[trader][ticker] = new(big.Int).Set(amount)
}

func (l *Ledger) persist(trader common.Address, ticker string, bal *big.Int) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveBalance(trader, ticker, bal)
}

// Stage accumulates balance deltas that apply all-or-nothing. Add never
// fails; Commit first verifies no entry goes negative, then applies every
// delta and hands the final values to the settlement batch.
type Stage struct {
	ledger *Ledger
	deltas map[common.Address]map[string]*big.Int
}

// Add accumulates a signed delta for (trader, ticker).
func (s *Stage) Add(trader common.Address, ticker string, delta *big.Int) {
	if s.deltas[trader] == nil {
		s.deltas[trader] = make(map[string]*big.Int)
	}
	if s.deltas[trader][ticker] == nil {
		s.deltas[trader][ticker] = new(big.Int)
	}
	s.deltas[trader][ticker].Add(s.deltas[trader][ticker], delta)
}

// Check verifies every staged entry stays non-negative once applied.
func (s *Stage) Check() error {
	for trader, row := range s.deltas {
		for ticker, delta := range row {
			next := new(big.Int).Add(s.ledger.Balance(trader, ticker), delta)
			if next.Sign() < 0 {
				return fmt.Errorf("%w: %s %s short by %s", ErrInsufficientBalance, trader.Hex(), ticker, new(big.Int).Neg(next))
			}
		}
	}
	return nil
}

// Commit applies the staged deltas and records the resulting balances on
// the batch. Callers must have run Check first; Commit repeats it as a
// guard and fails before mutating anything if it does not hold.
func (s *Stage) Commit(batch *store.Batch) error {
	if err := s.Check(); err != nil {
		return err
	}
	for trader, row := range s.deltas {
		for ticker, delta := range row {
			bal := s.ledger.entry(trader, ticker)
			bal.Add(bal, delta)
			if batch != nil {
				if err := batch.SaveBalance(trader, ticker, bal); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
