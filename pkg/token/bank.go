package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bank is an in-memory stand-in for a set of ERC-20 contracts. It keeps
// per-token balances and allowances and enforces the same rules a real
// token would: a TransferIn spends the sender's allowance for the
// recipient, a transfer never overdraws.
//
// Used by the devnet binary and the test harness; production deployments
// use the ERC20 adapter instead.
type Bank struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int // token -> holder -> amount
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> owner -> spender -> amount
}

func NewBank() *Bank {
	return &Bank{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits freshly created units to a holder.
func (b *Bank) Mint(tok, holder common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(tok, holder, amount)
}

// Approve lets spender pull up to amount of owner's tokens.
func (b *Bank) Approve(tok, owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allowances[tok] == nil {
		b.allowances[tok] = make(map[common.Address]map[common.Address]*big.Int)
	}
	if b.allowances[tok][owner] == nil {
		b.allowances[tok][owner] = make(map[common.Address]*big.Int)
	}
	b.allowances[tok][owner][spender] = new(big.Int).Set(amount)
}

// BalanceOf reports a holder's token balance. Returns a copy.
func (b *Bank) BalanceOf(tok, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(tok, holder))
}

// TransferIn moves amount from the trader to custody, spending allowance.
func (b *Bank) TransferIn(tok common.Address, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	allowed := b.allowance(tok, from, to)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s below %s", ErrTransferRejected, allowed, amount)
	}
	if err := b.move(tok, from, to, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	return nil
}

// TransferOut moves amount from custody back to the trader. Custody spends
// its own funds, so no allowance is involved.
func (b *Bank) TransferOut(tok common.Address, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(tok, from, to, amount)
}

func (b *Bank) move(tok, from, to common.Address, amount *big.Int) error {
	bal := b.balance(tok, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s below %s", ErrTransferRejected, bal, amount)
	}
	bal.Sub(bal, amount)
	b.credit(tok, to, amount)
	return nil
}

func (b *Bank) credit(tok, holder common.Address, amount *big.Int) {
	if b.balances[tok] == nil {
		b.balances[tok] = make(map[common.Address]*big.Int)
	}
	if b.balances[tok][holder] == nil {
		b.balances[tok][holder] = new(big.Int)
	}
	b.balances[tok][holder].Add(b.balances[tok][holder], amount)
}

// balance returns the live (mutable) balance entry, creating it at zero.
func (b *Bank) balance(tok, holder common.Address) *big.Int {
	if b.balances[tok] == nil {
		b.balances[tok] = make(map[common.Address]*big.Int)
	}
	if b.balances[tok][holder] == nil {
		b.balances[tok][holder] = new(big.Int)
	}
	return b.balances[tok][holder]
}

func (b *Bank) allowance(tok, owner, spender common.Address) *big.Int {
	if b.allowances[tok] == nil || b.allowances[tok][owner] == nil || b.allowances[tok][owner][spender] == nil {
		return new(big.Int)
	}
	return b.allowances[tok][owner][spender]
}
