package api

// Wire types for the REST and WebSocket surface. Token amounts and prices
// are decimal strings: they are 256-bit integers in the smallest token
// unit and do not fit JSON numbers.

type InstrumentInfo struct {
	Ticker string `json:"ticker"`
	Token  string `json:"token"`
}

type AddInstrumentRequest struct {
	Caller string `json:"caller"`
	Ticker string `json:"ticker"`
	Token  string `json:"token"`
}

// TransferRequest covers deposit and withdraw.
type TransferRequest struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
}

type LimitOrderRequest struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Side   uint8  `json:"side"` // 0 = buy, 1 = sell
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

type MarketOrderRequest struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Side   uint8  `json:"side"`
	Amount string `json:"amount"`
}

type OrderInfo struct {
	ID     uint64 `json:"id"`
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Side   uint8  `json:"side"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
	Filled string `json:"filled"`
}

type TradeInfo struct {
	ID         string `json:"id"`
	Ticker     string `json:"ticker"`
	Price      string `json:"price"`
	Qty        string `json:"qty"`
	TakerSide  uint8  `json:"takerSide"`
	Taker      string `json:"taker"`
	Maker      string `json:"maker"`
	MakerOrder uint64 `json:"makerOrder"`
	Timestamp  int64  `json:"timestamp"`
}

type BalanceInfo struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
}

type LimitOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

type MarketOrderResponse struct {
	Trades []TradeInfo `json:"trades"`
}

type BookSnapshot struct {
	Ticker    string      `json:"ticker"`
	Bids      []OrderInfo `json:"bids"`
	Asks      []OrderInfo `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is pushed on "trades:{ticker}" channels.
type TradeUpdate struct {
	Type  string    `json:"type"` // "trade"
	Trade TradeInfo `json:"trade"`
}

// BookUpdate is pushed on "orderbook:{ticker}" channels after a match.
type BookUpdate struct {
	Type string       `json:"type"` // "orderbook"
	Book BookSnapshot `json:"book"`
}
