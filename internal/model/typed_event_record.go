package model

import "encoding/json"

// TypedEventRecord is the JSON form of TypedEvent read back for aggregation.
// Decoded stays raw until the event name is known.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    *PoolMeta       `json:"pool_meta,omitempty"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// DecodeData unmarshals Decoded into the payload type matching EventName.
func (r TypedEventRecord) DecodeData() (EventData, error) {
	var data EventData
	switch r.EventName {
	case EventSwap:
		data = &SwapEventData{}
	case EventSync:
		data = &SyncEventData{}
	case EventMint:
		data = &MintEventData{}
	case EventBurn:
		data = &BurnEventData{}
	case EventRetrieveFunds:
		data = &RetrieveFundsEventData{}
	case EventPlaceBid:
		data = &PlaceBidEventData{}
	case EventExecuteWinningBid:
		data = &ExecuteWinningBidEventData{}
	case EventRefundBid:
		data = &RefundBidEventData{}
	case EventPairCreated:
		data = &PairCreatedEventData{}
	case EventFlowUpdated:
		data = &FlowUpdatedEventData{}
	default:
		return nil, &UnknownEventError{Name: r.EventName}
	}
	if err := json.Unmarshal(r.Decoded, data); err != nil {
		return nil, err
	}
	return data, nil
}

// UnknownEventError reports an event name without a payload type.
type UnknownEventError struct {
	Name string
}

func (e *UnknownEventError) Error() string {
	return "unknown event: " + e.Name
}
