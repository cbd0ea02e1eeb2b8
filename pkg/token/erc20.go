package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal ERC-20 surface the exchange needs: pull via transferFrom on
// deposit, push via transfer on withdraw.
const erc20ABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// ERC20 executes custody transfers against real token contracts through an
// Ethereum RPC endpoint. The custody account signs via opts.
type ERC20 struct {
	client *ethclient.Client
	parsed abi.ABI
	opts   *bind.TransactOpts
}

func NewERC20(client *ethclient.Client, opts *bind.TransactOpts) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20{client: client, parsed: parsed, opts: opts}, nil
}

// TransferIn pulls amount from the trader into custody via transferFrom.
// The trader must have approved the custody address beforehand.
func (e *ERC20) TransferIn(tok common.Address, from, to common.Address, amount *big.Int) error {
	return e.transact(tok, "transferFrom", from, to, amount)
}

// TransferOut pushes amount from custody to the trader via transfer.
func (e *ERC20) TransferOut(tok common.Address, from, to common.Address, amount *big.Int) error {
	return e.transact(tok, "transfer", to, amount)
}

func (e *ERC20) transact(tok common.Address, method string, args ...interface{}) error {
	contract := bind.NewBoundContract(tok, e.parsed, e.client, e.client, e.client)

	tx, err := contract.Transact(e.opts, method, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferRejected, method, err)
	}

	// The engine needs synchronous semantics: block until mined and check
	// the receipt, so a reverted transfer surfaces as a failed call.
	receipt, err := bind.WaitMined(context.Background(), e.client, tx)
	if err != nil {
		return fmt.Errorf("%s: wait mined: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s reverted (tx %s)", ErrTransferRejected, method, tx.Hash())
	}
	return nil
}
