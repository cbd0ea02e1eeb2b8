// Package dex implements the exchange engine: instrument registration,
// custodial deposits and withdrawals, limit order placement, and market
// order matching. Every state-mutating operation runs to completion under
// one mutex, reproducing the serialized transaction semantics of the host
// chain.
package dex

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Acero160/DEX/pkg/dex/instrument"
	"github.com/Acero160/DEX/pkg/dex/ledger"
	"github.com/Acero160/DEX/pkg/dex/orderbook"
	"github.com/Acero160/DEX/pkg/dex/store"
	"github.com/Acero160/DEX/pkg/token"
)

var (
	// ErrZeroAmount rejects non-positive amounts and prices.
	ErrZeroAmount = errors.New("amount must be positive")

	ErrNotAdmin = errors.New("caller is not the admin")

	ErrInvalidSide = errors.New("invalid side")
)

// Options configures a new Exchange.
type Options struct {
	// QuoteTicker denominates every limit price (e.g. "DAI").
	QuoteTicker string

	// Admin is the only address allowed to register instruments.
	Admin common.Address

	// Custody is the address token transfers settle against.
	Custody common.Address

	// Tokens executes the external transfers.
	Tokens token.Transferer

	// Store persists balances, orders, and trades. Nil keeps everything in
	// memory.
	Store *store.Store

	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Exchange owns all engine state. Orders belong to their book slot; the
// matcher only ever holds transient references.
type Exchange struct {
	mu sync.Mutex

	quote   string
	admin   common.Address
	custody common.Address

	tokens   token.Transferer
	registry *instrument.Registry
	ledger   *ledger.Ledger
	books    map[string]*orderbook.Book
	st       *store.Store
	log      *zap.Logger

	nextOrderID uint64

	// onTrade, if set, observes every settled trade (API broadcast).
	onTrade func(*orderbook.Trade)
}

// New builds an exchange, rehydrating balances and books from the store
// when one is configured.
func New(opts Options) (*Exchange, error) {
	if opts.QuoteTicker == "" {
		return nil, fmt.Errorf("quote ticker must be set")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token transferer must be set")
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	led, err := ledger.NewLedger(opts.Store)
	if err != nil {
		return nil, err
	}

	e := &Exchange{
		quote:       opts.QuoteTicker,
		admin:       opts.Admin,
		custody:     opts.Custody,
		tokens:      opts.Tokens,
		registry:    instrument.NewRegistry(),
		ledger:      led,
		books:       make(map[string]*orderbook.Book),
		st:          opts.Store,
		log:         log,
		nextOrderID: 1,
	}

	if opts.Store != nil {
		instruments, err := opts.Store.LoadInstruments()
		if err != nil {
			return nil, err
		}
		for _, ins := range instruments {
			if err := e.registry.Register(ins.Ticker, ins.Token); err != nil {
				return nil, err
			}
		}

		orders, err := opts.Store.LoadOrders()
		if err != nil {
			return nil, err
		}
		// Orders come back in ID order; replaying the inserts reproduces
		// every book position exactly.
		for _, o := range orders {
			e.book(o.Ticker).Insert(o)
			if o.ID >= e.nextOrderID {
				e.nextOrderID = o.ID + 1
			}
		}
	}

	return e, nil
}

// OnTrade registers a trade observer. Must be set before serving traffic.
func (e *Exchange) OnTrade(fn func(*orderbook.Trade)) {
	e.onTrade = fn
}

// QuoteTicker returns the instrument prices are denominated in.
func (e *Exchange) QuoteTicker() string {
	return e.quote
}

// AddInstrument registers a ticker for trading. Admin only.
func (e *Exchange) AddInstrument(caller common.Address, ticker string, tok common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller.Hex())
	}
	if err := e.registry.Register(ticker, tok); err != nil {
		return err
	}
	if e.st != nil {
		if err := e.st.SaveInstrument(instrument.Instrument{Ticker: ticker, Token: tok}); err != nil {
			return err
		}
	}

	e.log.Info("instrument registered",
		zap.String("ticker", ticker),
		zap.String("token", tok.Hex()))
	return nil
}

// Deposit pulls amount of ticker from the trader into custody and credits
// the ledger. The external transfer runs before any local mutation, so a
// declined transfer leaves no state behind.
func (e *Exchange) Deposit(trader common.Address, ticker string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	tok, err := e.registry.Resolve(ticker)
	if err != nil {
		return err
	}

	if err := e.tokens.TransferIn(tok, trader, e.custody, amount); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrExternalTransfer, err)
	}
	if err := e.ledger.Credit(trader, ticker, amount); err != nil {
		return err
	}

	e.log.Info("deposit",
		zap.String("trader", trader.Hex()),
		zap.String("ticker", ticker),
		zap.String("amount", amount.String()))
	return nil
}

// Withdraw debits the ledger first, then pushes the tokens out. Debiting
// before the external call rules out a reentrant double-withdraw; if the
// transfer is declined the debit is rolled back inside the critical
// section, so no caller ever observes the intermediate state.
func (e *Exchange) Withdraw(trader common.Address, ticker string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	tok, err := e.registry.Resolve(ticker)
	if err != nil {
		return err
	}

	if err := e.ledger.Debit(trader, ticker, amount); err != nil {
		return err
	}
	if err := e.tokens.TransferOut(tok, e.custody, trader, amount); err != nil {
		if cerr := e.ledger.Credit(trader, ticker, amount); cerr != nil {
			e.log.Error("withdraw rollback failed",
				zap.String("trader", trader.Hex()),
				zap.Error(cerr))
		}
		return fmt.Errorf("%w: %w", ledger.ErrExternalTransfer, err)
	}

	e.log.Info("withdraw",
		zap.String("trader", trader.Hex()),
		zap.String("ticker", ticker),
		zap.String("amount", amount.String()))
	return nil
}

// CreateLimitOrder validates and rests a limit order. The standing-balance
// check is a snapshot only: nothing is reserved, so several open orders
// can commit the same funds. Shortfalls surface at settlement.
func (e *Exchange) CreateLimitOrder(trader common.Address, ticker string, side orderbook.Side, amount, price *big.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !side.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	if amount == nil || amount.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return 0, ErrZeroAmount
	}
	if _, err := e.registry.Resolve(ticker); err != nil {
		return 0, err
	}

	// The committing side must hold the funds right now: base for a sell,
	// quote worth amount*price for a buy.
	if side == orderbook.Sell {
		if e.ledger.Balance(trader, ticker).Cmp(amount) < 0 {
			return 0, fmt.Errorf("%w: sell order needs %s %s", ledger.ErrInsufficientBalance, amount, ticker)
		}
	} else {
		cost := new(big.Int).Mul(amount, price)
		if e.ledger.Balance(trader, e.quote).Cmp(cost) < 0 {
			return 0, fmt.Errorf("%w: buy order needs %s %s", ledger.ErrInsufficientBalance, cost, e.quote)
		}
	}

	o := &orderbook.Order{
		ID:     e.nextOrderID,
		Trader: trader,
		Ticker: ticker,
		Side:   side,
		Price:  new(big.Int).Set(price),
		Amount: new(big.Int).Set(amount),
		Filled: new(big.Int),
	}
	e.nextOrderID++

	e.book(ticker).Insert(o)
	if e.st != nil {
		if err := e.st.SaveOrder(o); err != nil {
			return 0, err
		}
	}

	e.log.Info("limit order",
		zap.Uint64("id", o.ID),
		zap.String("trader", trader.Hex()),
		zap.String("ticker", ticker),
		zap.String("side", side.String()),
		zap.String("amount", amount.String()),
		zap.String("price", price.String()))
	return o.ID, nil
}

// Orders returns the book side for ticker in storage order (tail is the
// best match candidate). Filled orders are included; they are never
// pruned.
func (e *Exchange) Orders(ticker string, side orderbook.Side) ([]*orderbook.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !side.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	if _, err := e.registry.Resolve(ticker); err != nil {
		return nil, err
	}
	return e.book(ticker).Snapshot(side), nil
}

// Balance reads the custodial balance for (trader, ticker).
func (e *Exchange) Balance(trader common.Address, ticker string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.registry.Resolve(ticker); err != nil {
		return nil, err
	}
	return e.ledger.Balance(trader, ticker), nil
}

// Instruments lists everything registered, sorted by ticker.
func (e *Exchange) Instruments() []instrument.Instrument {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.List()
}

// RecentTrades returns up to limit executed trades for ticker, newest
// first. Empty without a store.
func (e *Exchange) RecentTrades(ticker string, limit int) ([]*orderbook.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.registry.Resolve(ticker); err != nil {
		return nil, err
	}
	if e.st == nil {
		return nil, nil
	}
	return e.st.RecentTrades(ticker, limit)
}

// book returns the order book for ticker, creating it lazily.
func (e *Exchange) book(ticker string) *orderbook.Book {
	b, ok := e.books[ticker]
	if !ok {
		b = orderbook.NewBook()
		e.books[ticker] = b
	}
	return b
}
