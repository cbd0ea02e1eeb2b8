// Package orderbook keeps the resting limit orders for one instrument.
//
// Each side is an ordered slice with the best match candidate at the tail:
// asks descend head→tail (lowest ask last), bids ascend head→tail (highest
// bid last). Price ties keep the earlier insertion nearer the tail, so
// among equal prices the oldest order matches first. Matching never
// reorders a side; it only advances Filled in place, and fully filled
// orders stay where they are.
package orderbook

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the wire-level order side. The numeric values are part of the
// external interface and must not change.
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the two wire values.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side a taker on s consumes liquidity from.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a resting limit order. Price is quote units per base unit,
// Amount and Filled are base units. All three are 256-bit range.
type Order struct {
	ID     uint64         `json:"id"`
	Trader common.Address `json:"trader"`
	Ticker string         `json:"ticker"`
	Side   Side           `json:"side"`
	Price  *big.Int       `json:"price"`
	Amount *big.Int       `json:"amount"`
	Filled *big.Int       `json:"filled"`
}

// Open returns the unfilled quantity.
func (o *Order) Open() *big.Int {
	return new(big.Int).Sub(o.Amount, o.Filled)
}

// IsFilled reports whether the order is fully consumed.
func (o *Order) IsFilled() bool {
	return o.Filled.Cmp(o.Amount) >= 0
}

// Trade records one settled match between a taker and a resting maker.
type Trade struct {
	ID         string         `json:"id"`
	Ticker     string         `json:"ticker"`
	Price      *big.Int       `json:"price"`
	Qty        *big.Int       `json:"qty"`
	TakerSide  Side           `json:"takerSide"`
	Taker      common.Address `json:"taker"`
	Maker      common.Address `json:"maker"`
	MakerOrder uint64         `json:"makerOrder"`
	Timestamp  int64          `json:"timestamp"`
}

// Book holds both sides for one ticker. Not self-locking: the exchange
// serializes all access.
type Book struct {
	sides [2][]*Order
}

func NewBook() *Book {
	return &Book{}
}

// Insert places o at its priority position with a single linear scan.
// Sells: before the first resident priced at or below o (descending side).
// Buys: before the first resident priced at or above o (ascending side).
// Either way a price tie lands o on the head side of its equals, leaving
// the earlier order nearer the tail.
func (b *Book) Insert(o *Order) {
	q := b.sides[o.Side]

	i := 0
	for ; i < len(q); i++ {
		c := q[i].Price.Cmp(o.Price)
		if (o.Side == Sell && c <= 0) || (o.Side == Buy && c >= 0) {
			break
		}
	}

	q = append(q, nil)
	copy(q[i+1:], q[i:])
	q[i] = o
	b.sides[o.Side] = q
}

// Side returns the live sequence for s, tail last. Callers mutate resident
// orders through the returned references but must never reorder them.
func (b *Book) Side(s Side) []*Order {
	return b.sides[s]
}

// Snapshot returns the sequence for s in storage order. Orders are deep
// copies: callers read them outside the engine lock while matching keeps
// mutating Filled on the residents.
func (b *Book) Snapshot(s Side) []*Order {
	out := make([]*Order, len(b.sides[s]))
	for i, o := range b.sides[s] {
		c := *o
		c.Price = new(big.Int).Set(o.Price)
		c.Amount = new(big.Int).Set(o.Amount)
		c.Filled = new(big.Int).Set(o.Filled)
		out[i] = &c
	}
	return out
}

// Liquidity sums the open quantity resting on s.
func (b *Book) Liquidity(s Side) *big.Int {
	total := new(big.Int)
	for _, o := range b.sides[s] {
		total.Add(total, o.Open())
	}
	return total
}

// Len returns the number of resident orders on s, filled ones included.
func (b *Book) Len(s Side) int {
	return len(b.sides[s])
}
