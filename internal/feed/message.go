package feed

import (
	"encoding/json"

	"stockstream/internal/model"
)

// Kind identifies the upstream message variants. The set is closed:
// everything that is not a trade batch or a keep-alive is KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	KindTrade
	KindPing
)

// Message is one decoded upstream frame.
type Message struct {
	Kind   Kind
	Trades []model.Tick // populated for KindTrade only
}

// wireMessage mirrors the upstream JSON envelope:
//
//	{"type":"trade","data":[{"s":"AAPL","p":191.2,"t":1700000000000}]}
//	{"type":"ping"}
type wireMessage struct {
	Type string       `json:"type"`
	Data []model.Tick `json:"data"`
}

// decode classifies a raw frame. Malformed frames come back as KindUnknown
// with a nil error — per-message failures are skipped, never fatal.
func decode(raw []byte) Message {
	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		return Message{Kind: KindUnknown}
	}

	switch wm.Type {
	case "trade":
		return Message{Kind: KindTrade, Trades: wm.Data}
	case "ping":
		return Message{Kind: KindPing}
	default:
		return Message{Kind: KindUnknown}
	}
}

// subscribeMsg is the outbound subscribe/unsubscribe handshake.
type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}
