package feed

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"signaltrack/internal/model"
	"signaltrack/pkg/exception"
)

const (
	// BinanceFuturesURL is the USDⓈ-M futures raw stream endpoint.
	BinanceFuturesURL = "wss://fstream.binance.com/ws"

	binanceMarkPriceEvent  = "markPriceUpdate"
	binanceMarkPriceSuffix = "@markPrice@1s"
)

// binanceJSON keeps encoding/json semantics, including case-insensitive field matching.
var binanceJSON = sonic.ConfigStd

// BinanceCodec speaks the Binance futures mark price stream protocol.
type BinanceCodec struct{}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`

	// request replies
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *binanceError   `json:"error"`

	// events
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`

	// keeps "P" from folding into MarkPrice
	SettlePrice string `json:"P"`
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (BinanceCodec) EncodeSubscribe(requestID uint64, instruments []model.Instrument) ([]byte, error) {
	params := make([]string, 0, len(instruments))
	for _, ins := range instruments {
		params = append(params, ins.StreamName()+binanceMarkPriceSuffix)
	}
	payload, err := binanceJSON.Marshal(binanceSubscribeRequest{
		Method: "SUBSCRIBE",
		Params: params,
		ID:     requestID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal subscribe request").With("params", params)
	}
	return payload, nil
}

func (c BinanceCodec) Decode(payload []byte) (Message, error) {
	var env binanceEnvelope
	if err := binanceJSON.Unmarshal(payload, &env); err != nil {
		return Message{}, errors.Wrap(exception.ErrFeedParse, err.Error())
	}

	if len(env.Data) != 0 && env.Stream != "" {
		return c.Decode(env.Data)
	}

	if env.ID != nil {
		if env.Error != nil {
			return Message{Kind: KindError, RequestID: *env.ID, ErrorCode: env.Error.Code, ErrorMsg: env.Error.Msg}, nil
		}
		return Message{Kind: KindAck, RequestID: *env.ID}, nil
	}

	if env.EventType != binanceMarkPriceEvent {
		if env.EventType == "" {
			return Message{}, errors.Wrap(exception.ErrFeedParse, "missing event type").With("payload", string(bytes.TrimSpace(payload)))
		}
		return Message{Kind: KindIgnored}, nil
	}

	ins, err := model.NormalizeInstrument(env.Symbol)
	if err != nil {
		return Message{}, errors.Wrap(exception.ErrFeedParse, "invalid symbol").With("symbol", env.Symbol)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(env.MarkPrice))
	if err != nil {
		return Message{}, errors.Wrap(exception.ErrFeedParse, "invalid price").With("price", env.MarkPrice)
	}
	if !price.IsPositive() {
		return Message{}, errors.Wrap(exception.ErrFeedParse, "non-positive price").With("price", env.MarkPrice)
	}

	tick := Tick{Instrument: ins, Price: price}
	if env.EventTime > 0 {
		tick.EventTime = time.UnixMilli(env.EventTime)
	}
	return Message{Kind: KindTick, Tick: tick}, nil
}
