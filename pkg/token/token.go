// Package token abstracts the external fungible-token contracts the
// exchange custodies. The engine only ever moves tokens through the
// Transferer interface; approval and balance semantics live on the token
// side.
package token

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrTransferRejected is returned when the token declines a transfer,
// e.g. insufficient balance or allowance.
var ErrTransferRejected = errors.New("token transfer rejected")

// Transferer moves token units between holders. Both calls are synchronous
// and atomic from the engine's perspective: they either fully succeed or
// return an error having moved nothing.
type Transferer interface {
	// TransferIn pulls amount of token from the trader into custody.
	// Requires a prior approval of the custody address on the token.
	TransferIn(tok common.Address, from, to common.Address, amount *big.Int) error

	// TransferOut pushes amount of token from custody back to the trader.
	TransferOut(tok common.Address, from, to common.Address, amount *big.Int) error
}
