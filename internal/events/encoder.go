package events

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"flowswap/internal/chain"
	"flowswap/internal/model"
)

// Encoder turns committed world logs into raw log records with ABI topics and data.
type Encoder struct {
	abi     abi.ABI
	chainID uint64
	now     func() time.Time
}

func NewEncoder(chainID uint64) (*Encoder, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &Encoder{abi: parsed, chainID: chainID, now: time.Now}, nil
}

// Encode builds the LogRecord for one committed log.
func (e *Encoder) Encode(log chain.Log) (model.LogRecord, error) {
	if log.Data == nil {
		return model.LogRecord{}, fmt.Errorf("log without payload")
	}
	name := log.Data.EventName()
	event, ok := e.abi.Events[name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unsupported event name: %s", name)
	}

	fields, err := payloadFields(log.Data)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("%s: %w", name, err)
	}

	topics := make([]string, 0, 4)
	topics = append(topics, event.ID.Hex())
	values := make([]interface{}, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		value, ok := fields[input.Name]
		if !ok {
			return model.LogRecord{}, fmt.Errorf("%s: missing field %s", name, input.Name)
		}
		if !input.Indexed {
			values = append(values, value)
			continue
		}
		hashes, err := abi.MakeTopics([]interface{}{value})
		if err != nil {
			return model.LogRecord{}, fmt.Errorf("%s: topic %s: %w", name, input.Name, err)
		}
		topics = append(topics, hashes[0][0].Hex())
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", name, err)
	}

	return model.LogRecord{
		ChainID:     e.chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     log.TxIndex,
		LogIndex:    log.LogIndex,
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   log.Timestamp,
		IngestedAt:  e.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// EncodeAll encodes a batch, stopping at the first failure.
func (e *Encoder) EncodeAll(logs []chain.Log) ([]model.LogRecord, error) {
	out := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		record, err := e.Encode(log)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// payloadFields maps a payload onto its ABI argument names.
func payloadFields(data model.EventData) (map[string]interface{}, error) {
	f := fieldSet{}
	switch d := data.(type) {
	case model.SwapEventData:
		f.address("sender", d.Sender)
		f.amount("amount0In", d.Amount0In)
		f.amount("amount1In", d.Amount1In)
		f.amount("amount0Out", d.Amount0Out)
		f.amount("amount1Out", d.Amount1Out)
		f.address("to", d.Recipient)
	case model.SyncEventData:
		f.amount("reserve0", d.Reserve0)
		f.amount("reserve1", d.Reserve1)
	case model.MintEventData:
		f.address("sender", d.Sender)
		f.amount("amount0", d.Amount0)
		f.amount("amount1", d.Amount1)
	case model.BurnEventData:
		f.address("sender", d.Sender)
		f.amount("amount0", d.Amount0)
		f.amount("amount1", d.Amount1)
		f.address("to", d.Recipient)
	case model.RetrieveFundsEventData:
		f.address("recipient", d.Recipient)
		f.amount("amount0", d.Amount0)
		f.amount("amount1", d.Amount1)
	case model.PlaceBidEventData:
		f.address("bidder", d.Bidder)
		f.address("pool", d.Pool)
		f.address("token", d.Token)
		f.amount("bidAmount", d.BidAmount)
		f.amount("swapAmount", d.SwapAmount)
		f.amount("minAmountOut", d.MinAmountOut)
		f.uint("deadline", d.Deadline)
	case model.ExecuteWinningBidEventData:
		f.address("bidder", d.Bidder)
		f.address("pool", d.Pool)
		f.address("token", d.Token)
		f.amount("bidAmount", d.BidAmount)
		f.amount("amountOut", d.AmountOut)
	case model.RefundBidEventData:
		f.address("bidder", d.Bidder)
		f.address("pool", d.Pool)
		f.address("token", d.Token)
		f.amount("amount", d.Amount)
	case model.PairCreatedEventData:
		f.address("token0", d.Token0)
		f.address("token1", d.Token1)
		f.address("pair", d.Pair)
		f.uint("index", d.Index)
	case model.FlowUpdatedEventData:
		f.address("token", d.Token)
		f.address("sender", d.Sender)
		f.address("receiver", d.Receiver)
		f.amount("flowRate", d.FlowRate)
	default:
		return nil, fmt.Errorf("unsupported payload %T", data)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

type fieldSet struct {
	values map[string]interface{}
	err    error
}

func (f *fieldSet) set(name string, value interface{}) {
	if f.values == nil {
		f.values = make(map[string]interface{})
	}
	f.values[name] = value
}

func (f *fieldSet) address(name, hex string) {
	if f.err != nil {
		return
	}
	if !common.IsHexAddress(hex) {
		f.err = fmt.Errorf("invalid %s address: %q", name, hex)
		return
	}
	f.set(name, common.HexToAddress(hex))
}

func (f *fieldSet) amount(name, value string) {
	if f.err != nil {
		return
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		f.err = fmt.Errorf("invalid %s amount: %q", name, value)
		return
	}
	f.set(name, n)
}

func (f *fieldSet) uint(name string, value uint64) {
	if f.err != nil {
		return
	}
	f.set(name, new(big.Int).SetUint64(value))
}
