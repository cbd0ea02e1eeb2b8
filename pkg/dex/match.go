package dex

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Acero160/DEX/pkg/dex/orderbook"
	"github.com/Acero160/DEX/pkg/dex/store"
)

// fill is one planned match against a resting maker order.
type fill struct {
	maker *orderbook.Order
	qty   *big.Int
}

// CreateMarketOrder executes a market order against the opposite book at
// maker prices. The unmatched remainder is silently discarded: a market
// order never rests, and running out of liquidity is a valid degenerate
// fill, not an error.
//
// Matching is planned first and settled second. The plan walks the book
// without touching state; settlement stages every balance delta, verifies
// none goes negative, then applies fills, ledger moves, and durable
// writes as one unit. A funding shortfall therefore aborts the whole
// order with nothing mutated.
func (e *Exchange) CreateMarketOrder(trader common.Address, ticker string, side orderbook.Side, amount *big.Int) ([]*orderbook.Trade, error) {
	trades, err := e.executeMarketOrder(trader, ticker, side, amount)
	if err != nil {
		return nil, err
	}

	// Observers run after the lock is released: the API hub reads the book
	// back through the engine to broadcast snapshots, so notifying under
	// e.mu would deadlock on the first fill.
	if e.onTrade != nil {
		for _, t := range trades {
			e.onTrade(t)
		}
	}
	return trades, nil
}

func (e *Exchange) executeMarketOrder(trader common.Address, ticker string, side orderbook.Side, amount *big.Int) ([]*orderbook.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !side.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if _, err := e.registry.Resolve(ticker); err != nil {
		return nil, err
	}

	plan := e.planFills(ticker, side, amount)
	if len(plan) == 0 {
		return nil, nil
	}

	trades, err := e.settle(trader, ticker, side, plan)
	if err != nil {
		return nil, err
	}

	e.log.Info("market order",
		zap.String("trader", trader.Hex()),
		zap.String("ticker", ticker),
		zap.String("side", side.String()),
		zap.String("amount", amount.String()),
		zap.Int("fills", len(trades)))
	return trades, nil
}

// planFills walks the opposite side from the tail (best price) toward the
// head, skipping residents that are already fully filled, taking
// min(remaining, open) from each. Read-only.
func (e *Exchange) planFills(ticker string, side orderbook.Side, amount *big.Int) []fill {
	opp := e.book(ticker).Side(side.Opposite())
	remaining := new(big.Int).Set(amount)

	var plan []fill
	for i := len(opp) - 1; i >= 0 && remaining.Sign() > 0; i-- {
		maker := opp[i]
		if maker.IsFilled() {
			continue
		}

		qty := maker.Open()
		if remaining.Cmp(qty) < 0 {
			qty.Set(remaining)
		}
		plan = append(plan, fill{maker: maker, qty: qty})
		remaining.Sub(remaining, qty)
	}
	return plan
}

// settle applies a fill plan: balance moves at the maker's price, Filled
// bumps on each maker order, a trade record per match. Every trade moves
// base one way and quote the other, so per-ticker conservation holds by
// construction. Makers are debited at match time, since nothing was
// reserved when their orders were created; a maker (or taker) shortfall
// fails the staged check and the market order aborts untouched.
func (e *Exchange) settle(taker common.Address, ticker string, side orderbook.Side, plan []fill) ([]*orderbook.Trade, error) {
	stage := e.ledger.Stage()
	for _, f := range plan {
		cost := new(big.Int).Mul(f.qty, f.maker.Price)
		if side == orderbook.Buy {
			stage.Add(taker, e.quote, new(big.Int).Neg(cost))
			stage.Add(taker, ticker, f.qty)
			stage.Add(f.maker.Trader, e.quote, cost)
			stage.Add(f.maker.Trader, ticker, new(big.Int).Neg(f.qty))
		} else {
			stage.Add(taker, ticker, new(big.Int).Neg(f.qty))
			stage.Add(taker, e.quote, cost)
			stage.Add(f.maker.Trader, ticker, f.qty)
			stage.Add(f.maker.Trader, e.quote, new(big.Int).Neg(cost))
		}
	}
	if err := stage.Check(); err != nil {
		return nil, err
	}

	var batch *store.Batch
	if e.st != nil {
		batch = e.st.NewBatch()
		defer batch.Close()
	}

	if err := stage.Commit(batch); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	trades := make([]*orderbook.Trade, 0, len(plan))
	for _, f := range plan {
		f.maker.Filled.Add(f.maker.Filled, f.qty)

		t := &orderbook.Trade{
			ID:         uuid.NewString(),
			Ticker:     ticker,
			Price:      new(big.Int).Set(f.maker.Price),
			Qty:        new(big.Int).Set(f.qty),
			TakerSide:  side,
			Taker:      taker,
			Maker:      f.maker.Trader,
			MakerOrder: f.maker.ID,
			Timestamp:  now,
		}
		trades = append(trades, t)

		if batch != nil {
			if err := batch.SaveOrder(f.maker); err != nil {
				return nil, err
			}
			if err := batch.SaveTrade(t); err != nil {
				return nil, err
			}
		}
	}

	if batch != nil {
		if err := batch.Commit(); err != nil {
			return nil, fmt.Errorf("persist settlement: %w", err)
		}
	}
	return trades, nil
}
