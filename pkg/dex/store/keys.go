package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so one range scan recovers a whole
// family, with zero-padded numeric components for lexicographic order.
const (
	prefixInstrument = "ins:"   // registered instruments
	prefixBalance    = "bal:"   // custodial balances
	prefixOrder      = "ord:"   // resting limit orders
	prefixTrade      = "trade:" // executed trades
)

// instrumentKey formats "ins:{ticker}".
func instrumentKey(ticker string) []byte {
	return []byte(prefixInstrument + ticker)
}

func instrumentPrefix() []byte {
	return []byte(prefixInstrument)
}

// balanceKey formats "bal:{address}:{ticker}".
func balanceKey(trader common.Address, ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, trader.Hex(), ticker))
}

func balancePrefix() []byte {
	return []byte(prefixBalance)
}

// orderKey formats "ord:{id}". The zero-padded ID keeps iteration in
// insertion order, which is all the book needs to rebuild itself.
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func orderPrefix() []byte {
	return []byte(prefixOrder)
}

// tradeKey formats "trade:{ticker}:{timestamp}:{id}".
func tradeKey(ticker string, timestamp int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, ticker, timestamp, id))
}

func tradePrefix(ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, ticker))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
