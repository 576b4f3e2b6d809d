package events

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"flowswap/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	PoolMetaCache *PoolMetaCache
	Pools         PoolMetaSource
	Logger        *zap.Logger
}

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// LogDecoder decodes pool, auction, registry and streaming token events.
type LogDecoder struct {
	abi         abi.ABI
	topicToName map[string]string
}

var eventNames = []string{
	model.EventSwap,
	model.EventSync,
	model.EventMint,
	model.EventBurn,
	model.EventRetrieveFunds,
	model.EventPlaceBid,
	model.EventExecuteWinningBid,
	model.EventRefundBid,
	model.EventPairCreated,
	model.EventFlowUpdated,
}

// NewLogDecoder builds a decoder. Topic0Map aliases extra topic hashes to known event names.
func NewLogDecoder(cfg DecoderConfig) (*LogDecoder, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(eventNames)+len(cfg.Topic0Map))
	for _, name := range eventNames {
		topicToName[strings.ToLower(parsed.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &LogDecoder{abi: parsed, topicToName: topicToName}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *LogDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *LogDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}

	event := d.abi.Events[name]
	fields, err := unpackFields(event, log)
	if err != nil {
		return nil, err
	}
	decoded, err := buildPayload(name, fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var meta *model.PoolMeta
	switch data := decoded.(type) {
	case model.PairCreatedEventData:
		created := model.PoolMeta{Token0: data.Token0, Token1: data.Token1}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(common.HexToAddress(data.Pair), created)
		}
		meta = &created
	case model.FlowUpdatedEventData:
	case model.PlaceBidEventData:
		meta, err = getPoolMeta(ctx, common.HexToAddress(data.Pool))
	case model.ExecuteWinningBidEventData:
		meta, err = getPoolMeta(ctx, common.HexToAddress(data.Pool))
	case model.RefundBidEventData:
		meta, err = getPoolMeta(ctx, common.HexToAddress(data.Pool))
	default:
		meta, err = getPoolMeta(ctx, common.HexToAddress(log.Address))
	}
	if err != nil {
		return nil, err
	}

	return buildTypedEvent(log, name, decoded, meta), nil
}

func normalizeEventName(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, known := range eventNames {
		if strings.EqualFold(trimmed, known) {
			return known
		}
	}
	return ""
}

func getPoolMeta(ctx DecodeContext, pool common.Address) (*model.PoolMeta, error) {
	if ctx.PoolMetaCache != nil {
		if meta, ok := ctx.PoolMetaCache.Get(pool); ok {
			return &meta, nil
		}
	}
	if ctx.Pools == nil {
		return nil, fmt.Errorf("unknown pool %s", pool.Hex())
	}
	meta, ok := ctx.Pools.PoolMeta(pool)
	if !ok {
		return nil, fmt.Errorf("unknown pool %s", pool.Hex())
	}
	if ctx.PoolMetaCache != nil {
		ctx.PoolMetaCache.Set(pool, meta)
	}
	if ctx.Logger != nil {
		ctx.Logger.Debug("pool meta resolved", zap.String("pool", pool.Hex()))
	}
	return &meta, nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded model.EventData, meta *model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         raw,
	}
}

func unpackFields(event abi.Event, log model.LogRecord) (map[string]interface{}, error) {
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(fields, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return fields, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

// buildPayload converts unpacked ABI values back into the model payload.
func buildPayload(name string, fields map[string]interface{}) (model.EventData, error) {
	r := fieldReader{fields: fields}
	var data model.EventData
	switch name {
	case model.EventSwap:
		data = model.SwapEventData{
			Sender:     r.address("sender"),
			Recipient:  r.address("to"),
			Amount0In:  r.amount("amount0In"),
			Amount1In:  r.amount("amount1In"),
			Amount0Out: r.amount("amount0Out"),
			Amount1Out: r.amount("amount1Out"),
		}
	case model.EventSync:
		data = model.SyncEventData{
			Reserve0: r.amount("reserve0"),
			Reserve1: r.amount("reserve1"),
		}
	case model.EventMint:
		data = model.MintEventData{
			Sender:  r.address("sender"),
			Amount0: r.amount("amount0"),
			Amount1: r.amount("amount1"),
		}
	case model.EventBurn:
		data = model.BurnEventData{
			Sender:    r.address("sender"),
			Recipient: r.address("to"),
			Amount0:   r.amount("amount0"),
			Amount1:   r.amount("amount1"),
		}
	case model.EventRetrieveFunds:
		data = model.RetrieveFundsEventData{
			Recipient: r.address("recipient"),
			Amount0:   r.amount("amount0"),
			Amount1:   r.amount("amount1"),
		}
	case model.EventPlaceBid:
		data = model.PlaceBidEventData{
			Bidder:       r.address("bidder"),
			Pool:         r.address("pool"),
			Token:        r.address("token"),
			BidAmount:    r.amount("bidAmount"),
			SwapAmount:   r.amount("swapAmount"),
			MinAmountOut: r.amount("minAmountOut"),
			Deadline:     r.uint("deadline"),
		}
	case model.EventExecuteWinningBid:
		data = model.ExecuteWinningBidEventData{
			Bidder:    r.address("bidder"),
			Pool:      r.address("pool"),
			Token:     r.address("token"),
			BidAmount: r.amount("bidAmount"),
			AmountOut: r.amount("amountOut"),
		}
	case model.EventRefundBid:
		data = model.RefundBidEventData{
			Bidder: r.address("bidder"),
			Pool:   r.address("pool"),
			Token:  r.address("token"),
			Amount: r.amount("amount"),
		}
	case model.EventPairCreated:
		data = model.PairCreatedEventData{
			Token0: r.address("token0"),
			Token1: r.address("token1"),
			Pair:   r.address("pair"),
			Index:  r.uint("index"),
		}
	case model.EventFlowUpdated:
		data = model.FlowUpdatedEventData{
			Token:    r.address("token"),
			Sender:   r.address("sender"),
			Receiver: r.address("receiver"),
			FlowRate: r.amount("flowRate"),
		}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if r.err != nil {
		return nil, r.err
	}
	return data, nil
}

type fieldReader struct {
	fields map[string]interface{}
	err    error
}

func (r *fieldReader) lookup(name string) (interface{}, bool) {
	if r.err != nil {
		return nil, false
	}
	value, ok := r.fields[name]
	if !ok {
		r.err = fmt.Errorf("missing field %s", name)
	}
	return value, ok
}

func (r *fieldReader) address(name string) string {
	value, ok := r.lookup(name)
	if !ok {
		return ""
	}
	addr, err := asAddress(value)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
		return ""
	}
	return addr.Hex()
}

func (r *fieldReader) amount(name string) string {
	value, ok := r.lookup(name)
	if !ok {
		return ""
	}
	n, err := asBigInt(value)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
		return ""
	}
	return n.String()
}

func (r *fieldReader) uint(name string) uint64 {
	value, ok := r.lookup(name)
	if !ok {
		return 0
	}
	n, err := asBigInt(value)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
		return 0
	}
	if !n.IsUint64() {
		r.err = fmt.Errorf("%s overflows uint64: %s", name, n.String())
		return 0
	}
	return n.Uint64()
}
