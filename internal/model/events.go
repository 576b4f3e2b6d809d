package model

// EventData is a decoded event payload. Amounts are base-10 strings.
type EventData interface {
	EventName() string
}

// Event names as they appear in the ABI.
const (
	EventSwap              = "Swap"
	EventSync              = "Sync"
	EventMint              = "Mint"
	EventBurn              = "Burn"
	EventRetrieveFunds     = "RetrieveFunds"
	EventPlaceBid          = "PlaceBid"
	EventExecuteWinningBid = "ExecuteWinningBid"
	EventRefundBid         = "RefundBid"
	EventPairCreated       = "PairCreated"
	EventFlowUpdated       = "FlowUpdated"
)

// SwapEventData is the Swap event payload.
type SwapEventData struct {
	Sender     string `json:"sender"`
	Recipient  string `json:"recipient"`
	Amount0In  string `json:"amount0_in"`
	Amount1In  string `json:"amount1_in"`
	Amount0Out string `json:"amount0_out"`
	Amount1Out string `json:"amount1_out"`
}

func (SwapEventData) EventName() string { return EventSwap }

// SyncEventData carries reserves after every update.
type SyncEventData struct {
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

func (SyncEventData) EventName() string { return EventSync }

// MintEventData is the Mint event payload.
type MintEventData struct {
	Sender  string `json:"sender"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

func (MintEventData) EventName() string { return EventMint }

// BurnEventData is the Burn event payload.
type BurnEventData struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

func (BurnEventData) EventName() string { return EventBurn }

// RetrieveFundsEventData records a streamer claiming swapped funds.
type RetrieveFundsEventData struct {
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

func (RetrieveFundsEventData) EventName() string { return EventRetrieveFunds }

// PlaceBidEventData is emitted when a bid becomes the window's incumbent.
type PlaceBidEventData struct {
	Bidder       string `json:"bidder"`
	Pool         string `json:"pool"`
	Token        string `json:"token"`
	BidAmount    string `json:"bid_amount"`
	SwapAmount   string `json:"swap_amount"`
	MinAmountOut string `json:"min_amount_out"`
	Deadline     uint64 `json:"deadline"`
}

func (PlaceBidEventData) EventName() string { return EventPlaceBid }

// ExecuteWinningBidEventData is emitted when a window is settled.
type ExecuteWinningBidEventData struct {
	Bidder    string `json:"bidder"`
	Pool      string `json:"pool"`
	Token     string `json:"token"`
	BidAmount string `json:"bid_amount"`
	AmountOut string `json:"amount_out"`
}

func (ExecuteWinningBidEventData) EventName() string { return EventExecuteWinningBid }

// RefundBidEventData is emitted when an incumbent is outbid.
type RefundBidEventData struct {
	Bidder string `json:"bidder"`
	Pool   string `json:"pool"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (RefundBidEventData) EventName() string { return EventRefundBid }

// PairCreatedEventData is emitted by the registry.
type PairCreatedEventData struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Pair   string `json:"pair"`
	Index  uint64 `json:"index"`
}

func (PairCreatedEventData) EventName() string { return EventPairCreated }

// FlowUpdatedEventData is emitted by streaming tokens.
type FlowUpdatedEventData struct {
	Token    string `json:"token"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	FlowRate string `json:"flow_rate"`
}

func (FlowUpdatedEventData) EventName() string { return EventFlowUpdated }
