package tests

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Acero160/DEX/pkg/dex"
	"github.com/Acero160/DEX/pkg/dex/instrument"
	"github.com/Acero160/DEX/pkg/dex/ledger"
	"github.com/Acero160/DEX/pkg/dex/orderbook"
	"github.com/Acero160/DEX/pkg/token"
)

var (
	admin   = common.HexToAddress("0xAD00000000000000000000000000000000000001")
	custody = common.HexToAddress("0xDEC5000000000000000000000000000000000001")
	trader1 = common.HexToAddress("0x1000000000000000000000000000000000000001")
	trader2 = common.HexToAddress("0x2000000000000000000000000000000000000002")

	daiToken = common.HexToAddress("0xDA10000000000000000000000000000000000001")
	dotToken = common.HexToAddress("0xD070000000000000000000000000000000000001")
	solToken = common.HexToAddress("0x5010000000000000000000000000000000000001")
)

// ether scales a whole-token count to 18-decimal base units.
func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// newTestDex builds an in-memory exchange with DAI/DOT/SOL registered and
// both traders funded and fully approved.
func newTestDex(t *testing.T) (*dex.Exchange, *token.Bank) {
	t.Helper()

	bank := token.NewBank()
	ex, err := dex.New(dex.Options{
		QuoteTicker: "DAI",
		Admin:       admin,
		Custody:     custody,
		Tokens:      bank,
	})
	if err != nil {
		t.Fatalf("build exchange: %v", err)
	}

	for ticker, tok := range map[string]common.Address{"DAI": daiToken, "DOT": dotToken, "SOL": solToken} {
		if err := ex.AddInstrument(admin, ticker, tok); err != nil {
			t.Fatalf("register %s: %v", ticker, err)
		}
		for _, trader := range []common.Address{trader1, trader2} {
			bank.Mint(tok, trader, ether(10000))
			bank.Approve(tok, trader, custody, ether(10000))
		}
	}

	return ex, bank
}

func mustBalance(t *testing.T, ex *dex.Exchange, trader common.Address, ticker string) *big.Int {
	t.Helper()
	bal, err := ex.Balance(trader, ticker)
	if err != nil {
		t.Fatalf("balance %s %s: %v", trader.Hex(), ticker, err)
	}
	return bal
}

func TestDeposit(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DAI", ether(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := mustBalance(t, ex, trader1, "DAI"); got.Cmp(ether(10)) != 0 {
		t.Errorf("balance = %s, want %s", got, ether(10))
	}
}

func TestDepositUnknownTicker(t *testing.T) {
	ex, _ := newTestDex(t)

	err := ex.Deposit(trader1, "NOPE", ether(10))
	if !errors.Is(err, instrument.ErrUnknownTicker) {
		t.Fatalf("expected unknown ticker, got %v", err)
	}
}

func TestDepositFailsWithoutApproval(t *testing.T) {
	ex, bank := newTestDex(t)

	// A third trader holds tokens but never approved custody.
	stranger := common.HexToAddress("0x3000000000000000000000000000000000000003")
	bank.Mint(daiToken, stranger, ether(10))

	err := ex.Deposit(stranger, "DAI", ether(10))
	if !errors.Is(err, ledger.ErrExternalTransfer) {
		t.Fatalf("expected external transfer failure, got %v", err)
	}
	// The token-side sentinel stays in the chain so callers can tell a
	// declined transfer from other external failures.
	if !errors.Is(err, token.ErrTransferRejected) {
		t.Errorf("token sentinel lost from chain: %v", err)
	}
	if got := mustBalance(t, ex, stranger, "DAI"); got.Sign() != 0 {
		t.Errorf("failed deposit credited balance: %s", got)
	}
}

func TestWithdrawRoundTrip(t *testing.T) {
	ex, bank := newTestDex(t)

	if err := ex.Deposit(trader1, "DAI", ether(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ex.Withdraw(trader1, "DAI", ether(10)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := mustBalance(t, ex, trader1, "DAI"); got.Sign() != 0 {
		t.Errorf("balance after round trip = %s, want 0", got)
	}
	if got := bank.BalanceOf(daiToken, trader1); got.Cmp(ether(10000)) != 0 {
		t.Errorf("wallet after round trip = %s, want %s", got, ether(10000))
	}

	// One unit more than the (now empty) custody balance must fail and
	// leave the balance untouched.
	err := ex.Withdraw(trader1, "DAI", ether(11))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := mustBalance(t, ex, trader1, "DAI"); got.Sign() != 0 {
		t.Errorf("failed withdraw moved balance: %s", got)
	}
}

func TestWithdrawUnknownTicker(t *testing.T) {
	ex, _ := newTestDex(t)

	err := ex.Withdraw(trader1, "NOPE", ether(10))
	if !errors.Is(err, instrument.ErrUnknownTicker) {
		t.Fatalf("expected unknown ticker, got %v", err)
	}
}

func TestCreateLimitOrder(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	id, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(10), big.NewInt(1))
	if err != nil {
		t.Fatalf("create limit order: %v", err)
	}
	if id != 1 {
		t.Errorf("first order id = %d, want 1", id)
	}

	sells, err := ex.Orders("DOT", orderbook.Sell)
	if err != nil {
		t.Fatalf("get sell orders: %v", err)
	}
	buys, err := ex.Orders("DOT", orderbook.Buy)
	if err != nil {
		t.Fatalf("get buy orders: %v", err)
	}

	if len(sells) != 1 {
		t.Fatalf("sell orders = %d, want 1", len(sells))
	}
	if len(buys) != 0 {
		t.Fatalf("buy orders = %d, want 0", len(buys))
	}

	o := sells[0]
	if o.Ticker != "DOT" || o.Trader != trader1 {
		t.Errorf("order identity wrong: %+v", o)
	}
	if o.Price.Cmp(big.NewInt(1)) != 0 || o.Amount.Cmp(ether(10)) != 0 || o.Filled.Sign() != 0 {
		t.Errorf("order fields wrong: price=%s amount=%s filled=%s", o.Price, o.Amount, o.Filled)
	}
}

func TestLimitOrderValidation(t *testing.T) {
	ex, _ := newTestDex(t)

	if _, err := ex.CreateLimitOrder(trader1, "NOPE", orderbook.Sell, ether(1), big.NewInt(1)); !errors.Is(err, instrument.ErrUnknownTicker) {
		t.Errorf("unknown ticker: got %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, big.NewInt(0), big.NewInt(1)); !errors.Is(err, dex.ErrZeroAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(1), big.NewInt(0)); !errors.Is(err, dex.ErrZeroAmount) {
		t.Errorf("zero price: got %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Side(7), ether(1), big.NewInt(1)); !errors.Is(err, dex.ErrInvalidSide) {
		t.Errorf("invalid side: got %v", err)
	}
}

func TestLimitOrderRequiresStandingBalance(t *testing.T) {
	ex, _ := newTestDex(t)

	// Sell side commits the base ticker.
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(1), big.NewInt(1)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("unfunded sell: got %v", err)
	}

	// Buy side commits amount*price of the quote ticker.
	if err := ex.Deposit(trader2, "DAI", ether(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader2, "DOT", orderbook.Buy, ether(6), big.NewInt(2)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("underfunded buy (needs 12 DAI): got %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader2, "DOT", orderbook.Buy, ether(5), big.NewInt(2)); err != nil {
		t.Errorf("funded buy (needs 10 DAI): %v", err)
	}
}

// TestMarketOrderFullMatch sweeps three makers: sells (10@20, 10@20,
// 20@25) consumed by a market buy of 40. The lowest-priced asks settle
// first, the book keeps its storage order, and index 0 is the 25-priced
// order, fully filled.
func TestMarketOrderFullMatch(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(40)); err != nil {
		t.Fatalf("deposit DOT: %v", err)
	}
	for _, o := range []struct {
		amount int64
		price  int64
	}{{10, 20}, {10, 20}, {20, 25}} {
		if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(o.amount), big.NewInt(o.price)); err != nil {
			t.Fatalf("limit %d@%d: %v", o.amount, o.price, err)
		}
	}

	if err := ex.Deposit(trader2, "DAI", ether(2000)); err != nil {
		t.Fatalf("deposit DAI: %v", err)
	}
	trades, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(40))
	if err != nil {
		t.Fatalf("market order: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("trades = %d, want 3", len(trades))
	}

	// Cheapest asks first: 20, 20, then 25.
	for i, wantPrice := range []int64{20, 20, 25} {
		if trades[i].Price.Cmp(big.NewInt(wantPrice)) != 0 {
			t.Errorf("trade %d price = %s, want %d", i, trades[i].Price, wantPrice)
		}
	}

	if got := mustBalance(t, ex, trader2, "DOT"); got.Cmp(ether(40)) != 0 {
		t.Errorf("taker DOT = %s, want %s", got, ether(40))
	}

	// 10*20 + 10*20 + 20*25 = 900 DAI moved taker -> maker.
	if got := mustBalance(t, ex, trader2, "DAI"); got.Cmp(ether(1100)) != 0 {
		t.Errorf("taker DAI = %s, want %s", got, ether(1100))
	}
	if got := mustBalance(t, ex, trader1, "DAI"); got.Cmp(ether(900)) != 0 {
		t.Errorf("maker DAI = %s, want %s", got, ether(900))
	}
	if got := mustBalance(t, ex, trader1, "DOT"); got.Sign() != 0 {
		t.Errorf("maker DOT = %s, want 0", got)
	}

	sells, err := ex.Orders("DOT", orderbook.Sell)
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(sells) != 3 {
		t.Fatalf("filled orders pruned: %d resident, want 3", len(sells))
	}
	// Storage order unchanged: index 0 is the 25-priced order.
	if sells[0].Price.Cmp(big.NewInt(25)) != 0 {
		t.Errorf("head price = %s, want 25", sells[0].Price)
	}
	if sells[0].Filled.Cmp(ether(20)) != 0 || sells[0].Amount.Cmp(ether(20)) != 0 {
		t.Errorf("head fill = %s/%s, want 20/20", sells[0].Filled, sells[0].Amount)
	}
	for i, o := range sells {
		if !o.IsFilled() {
			t.Errorf("order %d not fully filled: %s/%s", i, o.Filled, o.Amount)
		}
	}
}

func TestMarketOrderPartialLiquidity(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(10), big.NewInt(2)); err != nil {
		t.Fatalf("limit: %v", err)
	}

	if err := ex.Deposit(trader2, "DAI", ether(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Demand 40 against 10 of liquidity: no error, the remainder is
	// silently dropped, and no taker order rests anywhere.
	trades, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(40))
	if err != nil {
		t.Fatalf("market order: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if got := mustBalance(t, ex, trader2, "DOT"); got.Cmp(ether(10)) != 0 {
		t.Errorf("taker DOT = %s, want %s", got, ether(10))
	}

	buys, _ := ex.Orders("DOT", orderbook.Buy)
	if len(buys) != 0 {
		t.Errorf("market order rested in the book: %d buy orders", len(buys))
	}
}

func TestMarketOrderEmptyBookIsNoOp(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader2, "DAI", ether(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	trades, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(5))
	if err != nil {
		t.Fatalf("market order on empty book: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("trades = %d, want 0", len(trades))
	}
	if got := mustBalance(t, ex, trader2, "DAI"); got.Cmp(ether(100)) != 0 {
		t.Errorf("zero fill moved balance: %s", got)
	}
}

func TestMarketOrderSellSide(t *testing.T) {
	ex, _ := newTestDex(t)

	// Two resting bids; the higher one must settle first at its own price.
	if err := ex.Deposit(trader2, "DAI", ether(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader2, "DOT", orderbook.Buy, ether(10), big.NewInt(10)); err != nil {
		t.Fatalf("bid 10@10: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader2, "DOT", orderbook.Buy, ether(10), big.NewInt(12)); err != nil {
		t.Fatalf("bid 10@12: %v", err)
	}

	if err := ex.Deposit(trader1, "DOT", ether(15)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	trades, err := ex.CreateMarketOrder(trader1, "DOT", orderbook.Sell, ether(15))
	if err != nil {
		t.Fatalf("market sell: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].Price.Cmp(big.NewInt(12)) != 0 || trades[1].Price.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("settle prices = %s, %s, want 12 then 10", trades[0].Price, trades[1].Price)
	}

	// Taker: 10*12 + 5*10 = 170 DAI in, 15 DOT out.
	if got := mustBalance(t, ex, trader1, "DAI"); got.Cmp(ether(170)) != 0 {
		t.Errorf("taker DAI = %s, want %s", got, ether(170))
	}
	if got := mustBalance(t, ex, trader1, "DOT"); got.Sign() != 0 {
		t.Errorf("taker DOT = %s, want 0", got)
	}
	if got := mustBalance(t, ex, trader2, "DOT"); got.Cmp(ether(15)) != 0 {
		t.Errorf("maker DOT = %s, want %s", got, ether(15))
	}

	bids, _ := ex.Orders("DOT", orderbook.Buy)
	if len(bids) != 2 {
		t.Fatalf("bids resident = %d, want 2", len(bids))
	}
	// Tail (best) bid fully filled, head bid half filled.
	if !bids[1].IsFilled() {
		t.Errorf("best bid not fully filled: %s/%s", bids[1].Filled, bids[1].Amount)
	}
	if bids[0].Filled.Cmp(ether(5)) != 0 {
		t.Errorf("head bid fill = %s, want %s", bids[0].Filled, ether(5))
	}
}

func TestMarketOrderSkipsFilledResidents(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(20)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(10), big.NewInt(20)); err != nil {
		t.Fatalf("limit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(10), big.NewInt(25)); err != nil {
		t.Fatalf("limit: %v", err)
	}

	if err := ex.Deposit(trader2, "DAI", ether(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// First order consumes the cheap ask entirely; it stays resident.
	if _, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(10)); err != nil {
		t.Fatalf("first market order: %v", err)
	}
	// Second order must step over the filled tail and hit the 25 ask.
	trades, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(5))
	if err != nil {
		t.Fatalf("second market order: %v", err)
	}
	if len(trades) != 1 || trades[0].Price.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("second order trades = %+v, want one fill at 25", trades)
	}
}

func TestMarketOrderTakerUnderfundedFailsAtomically(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(40)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(40), big.NewInt(20)); err != nil {
		t.Fatalf("limit: %v", err)
	}

	// Needs 800 DAI, has 100.
	if err := ex.Deposit(trader2, "DAI", ether(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(40))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	// Nothing moved, nothing filled.
	if got := mustBalance(t, ex, trader2, "DAI"); got.Cmp(ether(100)) != 0 {
		t.Errorf("taker DAI mutated: %s", got)
	}
	sells, _ := ex.Orders("DOT", orderbook.Sell)
	if sells[0].Filled.Sign() != 0 {
		t.Errorf("maker order mutated: filled=%s", sells[0].Filled)
	}
}

func TestMarketOrderValidation(t *testing.T) {
	ex, _ := newTestDex(t)

	if _, err := ex.CreateMarketOrder(trader1, "NOPE", orderbook.Buy, ether(1)); !errors.Is(err, instrument.ErrUnknownTicker) {
		t.Errorf("unknown ticker: got %v", err)
	}
	if _, err := ex.CreateMarketOrder(trader1, "DOT", orderbook.Buy, big.NewInt(0)); !errors.Is(err, dex.ErrZeroAmount) {
		t.Errorf("zero amount: got %v", err)
	}
}

func TestOrdersQueryIsIdempotent(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(30)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for _, price := range []int64{20, 25, 20} {
		if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(10), big.NewInt(price)); err != nil {
			t.Fatalf("limit: %v", err)
		}
	}

	first, err := ex.Orders("DOT", orderbook.Sell)
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	second, err := ex.Orders("DOT", orderbook.Sell)
	if err != nil {
		t.Fatalf("orders: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("snapshot lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("index %d differs: %d vs %d", i, first[i].ID, second[i].ID)
		}
	}
}

// TestBalanceConservation drives a mixed sequence and checks that, per
// ticker, custody balances plus withdrawals equal deposits throughout.
func TestBalanceConservation(t *testing.T) {
	ex, _ := newTestDex(t)

	deposited := map[string]*big.Int{"DAI": new(big.Int), "DOT": new(big.Int)}
	withdrawn := map[string]*big.Int{"DAI": new(big.Int), "DOT": new(big.Int)}

	deposit := func(trader common.Address, ticker string, n int64) {
		t.Helper()
		if err := ex.Deposit(trader, ticker, ether(n)); err != nil {
			t.Fatalf("deposit %d %s: %v", n, ticker, err)
		}
		deposited[ticker].Add(deposited[ticker], ether(n))
	}
	withdraw := func(trader common.Address, ticker string, n int64) {
		t.Helper()
		if err := ex.Withdraw(trader, ticker, ether(n)); err != nil {
			t.Fatalf("withdraw %d %s: %v", n, ticker, err)
		}
		withdrawn[ticker].Add(withdrawn[ticker], ether(n))
	}
	check := func() {
		t.Helper()
		for _, ticker := range []string{"DAI", "DOT"} {
			held := new(big.Int)
			for _, trader := range []common.Address{trader1, trader2} {
				held.Add(held, mustBalance(t, ex, trader, ticker))
			}
			held.Add(held, withdrawn[ticker])
			if held.Cmp(deposited[ticker]) != 0 {
				t.Fatalf("%s conservation broken: held+withdrawn=%s deposited=%s", ticker, held, deposited[ticker])
			}
		}
	}

	deposit(trader1, "DOT", 50)
	deposit(trader2, "DAI", 1000)
	check()

	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(30), big.NewInt(10)); err != nil {
		t.Fatalf("limit: %v", err)
	}
	check()

	if _, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(20)); err != nil {
		t.Fatalf("market: %v", err)
	}
	check()

	withdraw(trader1, "DAI", 100)
	withdraw(trader2, "DOT", 20)
	check()
}

// TestTradeObserverReadsBackThroughEngine wires an observer that queries
// the engine, the way the API hub rebroadcasts book snapshots after a
// fill. The market order must still return: observers fire after the
// engine lock is released.
func TestTradeObserverReadsBackThroughEngine(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(10), big.NewInt(2)); err != nil {
		t.Fatalf("limit: %v", err)
	}
	if err := ex.Deposit(trader2, "DAI", ether(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var observed int
	ex.OnTrade(func(tr *orderbook.Trade) {
		if _, err := ex.Orders(tr.Ticker, orderbook.Sell); err != nil {
			t.Errorf("observer orders read: %v", err)
		}
		if _, err := ex.Balance(tr.Maker, "DAI"); err != nil {
			t.Errorf("observer balance read: %v", err)
		}
		observed++
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(10)); err != nil {
			t.Errorf("market order: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("market order never returned; observer blocked on the engine lock")
	}
	if observed != 1 {
		t.Errorf("observed trades = %d, want 1", observed)
	}
}

// TestConcurrentBookReadsDuringMatching hammers the query surface while
// market orders settle. Snapshots are deep copies, so reading Filled
// concurrently with settlement must be race free.
func TestConcurrentBookReadsDuringMatching(t *testing.T) {
	ex, _ := newTestDex(t)

	if err := ex.Deposit(trader1, "DOT", ether(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "DOT", orderbook.Sell, ether(50), big.NewInt(20)); err != nil {
		t.Fatalf("limit: %v", err)
	}
	if err := ex.Deposit(trader2, "DAI", ether(2000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			orders, err := ex.Orders("DOT", orderbook.Sell)
			if err != nil {
				t.Errorf("orders: %v", err)
				return
			}
			for _, o := range orders {
				_ = o.Filled.String()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		if _, err := ex.CreateMarketOrder(trader2, "DOT", orderbook.Buy, ether(1)); err != nil {
			t.Fatalf("market order %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestAddInstrumentAdminOnly(t *testing.T) {
	ex, _ := newTestDex(t)

	err := ex.AddInstrument(trader1, "BTC", common.HexToAddress("0xB7C0000000000000000000000000000000000001"))
	if !errors.Is(err, dex.ErrNotAdmin) {
		t.Fatalf("expected admin rejection, got %v", err)
	}

	err = ex.AddInstrument(admin, "DAI", daiToken)
	if !errors.Is(err, instrument.ErrDuplicateTicker) {
		t.Fatalf("expected duplicate ticker, got %v", err)
	}
}
