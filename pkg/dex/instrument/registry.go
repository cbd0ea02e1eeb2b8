// Package instrument maps symbolic tickers to the token contracts backing
// them. Registration is append-only: an instrument is never mutated or
// removed once listed.
package instrument

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownTicker's message is part of the external interface; clients
	// match on it.
	ErrUnknownTicker = errors.New("token does not exist")

	ErrDuplicateTicker = errors.New("ticker already registered")
)

// Instrument ties a ticker to its token contract.
type Instrument struct {
	Ticker string         `json:"ticker"`
	Token  common.Address `json:"token"`
}

// Registry holds all listed instruments. Not self-locking: the exchange
// serializes every call under its own mutex.
type Registry struct {
	instruments map[string]Instrument
}

func NewRegistry() *Registry {
	return &Registry{instruments: make(map[string]Instrument)}
}

// Register lists a new instrument. Fails if the ticker is taken.
func (r *Registry) Register(ticker string, tok common.Address) error {
	if _, ok := r.instruments[ticker]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTicker, ticker)
	}
	r.instruments[ticker] = Instrument{Ticker: ticker, Token: tok}
	return nil
}

// Resolve returns the token contract behind a ticker.
func (r *Registry) Resolve(ticker string) (common.Address, error) {
	ins, ok := r.instruments[ticker]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return ins.Token, nil
}

// Exists reports whether a ticker is listed.
func (r *Registry) Exists(ticker string) bool {
	_, ok := r.instruments[ticker]
	return ok
}

// List returns all instruments sorted by ticker.
func (r *Registry) List() []Instrument {
	out := make([]Instrument, 0, len(r.instruments))
	for _, ins := range r.instruments {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Count returns the number of listed instruments.
func (r *Registry) Count() int {
	return len(r.instruments)
}
