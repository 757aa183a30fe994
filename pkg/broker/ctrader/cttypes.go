package ctrader

import "encoding/json"

// Open API payload type identifiers used over the JSON WebSocket surface.
const (
	PayloadHeartbeatEvent     = 51
	PayloadApplicationAuthReq = 2100
	PayloadApplicationAuthRes = 2101
	PayloadAccountAuthReq     = 2102
	PayloadAccountAuthRes     = 2103
	PayloadSymbolsListReq     = 2104
	PayloadSymbolsListRes     = 2105
	PayloadSubscribeSpotsReq  = 2106
	PayloadSubscribeSpotsRes  = 2107
	PayloadSpotEvent          = 2131
	PayloadErrorRes           = 2142
)

// Spot prices arrive as integers in 1/100000 of the quote unit.
const priceScale = 1e5

// Envelope is the wire frame: every message carries a payload type, an
// optional correlation ID and a type-specific payload.
type Envelope struct {
	ClientMsgID string          `json:"clientMsgId,omitempty"`
	PayloadType int             `json:"payloadType"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type ApplicationAuthReq struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type ApplicationAuthRes struct{}

type AccountAuthReq struct {
	CtidTraderAccountID int64  `json:"ctidTraderAccountId"`
	AccessToken         string `json:"accessToken"`
}

type AccountAuthRes struct {
	CtidTraderAccountID int64 `json:"ctidTraderAccountId"`
}

type SymbolsListReq struct {
	CtidTraderAccountID    int64 `json:"ctidTraderAccountId"`
	IncludeArchivedSymbols bool  `json:"includeArchivedSymbols"`
}

// LightSymbol is the per-symbol entry in a SymbolsListRes.
type LightSymbol struct {
	SymbolID   int64  `json:"symbolId"`
	SymbolName string `json:"symbolName"`
	Enabled    bool   `json:"enabled,omitempty"`
}

type SymbolsListRes struct {
	CtidTraderAccountID int64         `json:"ctidTraderAccountId"`
	Symbol              []LightSymbol `json:"symbol"`
}

type SubscribeSpotsReq struct {
	CtidTraderAccountID int64   `json:"ctidTraderAccountId"`
	SymbolID            []int64 `json:"symbolId"`
}

// SpotEvent carries bid/ask ticks; either side may be absent on a partial
// tick, signalled by a zero value.
type SpotEvent struct {
	CtidTraderAccountID int64 `json:"ctidTraderAccountId"`
	SymbolID            int64 `json:"symbolId"`
	Bid                 int64 `json:"bid,omitempty"`
	Ask                 int64 `json:"ask,omitempty"`
}

type ErrorRes struct {
	CtidTraderAccountID int64  `json:"ctidTraderAccountId,omitempty"`
	ErrorCode           string `json:"errorCode"`
	Description         string `json:"description,omitempty"`
}

type heartbeatEvent struct{}
