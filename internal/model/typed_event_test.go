package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPlaceBidEventDataJSONStringFields(t *testing.T) {
	payload := PlaceBidEventData{
		Bidder:       "0x1111111111111111111111111111111111111111",
		Pool:         "0x2222222222222222222222222222222222222222",
		Token:        "0x3333333333333333333333333333333333333333",
		BidAmount:    "3000000000000000",
		SwapAmount:   "1000000000000000000",
		MinAmountOut: "0",
		Deadline:     1700000000,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"bid_amount", "swap_amount", "min_amount_out"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
}

func TestTypedEventRecordDecodeData(t *testing.T) {
	event := TypedEvent{
		EventName: EventSwap,
		Decoded: SwapEventData{
			Sender:     "0x1111111111111111111111111111111111111111",
			Recipient:  "0x2222222222222222222222222222222222222222",
			Amount0In:  "1000",
			Amount1Out: "1990",
		},
	}
	line, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var record TypedEventRecord
	if err := json.Unmarshal(line, &record); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	data, err := record.DecodeData()
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	swap, ok := data.(*SwapEventData)
	if !ok {
		t.Fatalf("unexpected payload type %T", data)
	}
	if swap.Amount1Out != "1990" || swap.Amount0In != "1000" {
		t.Fatalf("unexpected swap payload: %+v", swap)
	}

	record.EventName = "Collect"
	var unknown *UnknownEventError
	if _, err := record.DecodeData(); !errors.As(err, &unknown) {
		t.Fatalf("expected unknown event error, got %v", err)
	}
}
