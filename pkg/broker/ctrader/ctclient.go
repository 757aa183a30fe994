// File: pkg/broker/ctrader/ctclient.go
package ctrader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bardaqus/signalsbot-sub001/pkg/broker"
	utils "github.com/Bardaqus/signalsbot-sub001/utilities"
)

var (
	ErrNotConnected    = errors.New("ctrader: session not connected")
	ErrResponseTimeout = errors.New("ctrader: response timeout")
)

// quoteState is the latest bid/ask seen for one symbol. Partial ticks update
// one side and keep the other.
type quoteState struct {
	bid       float64
	ask       float64
	timestamp time.Time
}

// Session is a correlated request/response WebSocket session against the
// cTrader Open API. Every outbound frame carries an incrementing correlation
// ID; callers expecting a reply register a wait entry keyed by that ID before
// the frame leaves, and a single background reader resolves entries as
// matching frames arrive. Unmatched frames are logged and dropped. Spot
// ticks are folded into a quote table instead of being correlated.
type Session struct {
	cfg    *utils.CTraderConfig
	logger *utils.Logger
	tokens *TokenSource

	url string

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu         sync.Mutex
	msgID      uint64
	pending    map[string]chan Envelope
	connected  bool
	readerDone chan struct{}

	symbolMu   sync.RWMutex
	symbolToID map[string]int64
	idToSymbol map[int64]string
	subscribed map[int64]bool

	quoteMu sync.RWMutex
	quotes  map[int64]quoteState

	connectTimeout time.Duration
	respTimeout    time.Duration
	heartbeat      time.Duration
}

func NewSession(appCfg *utils.AppConfig, logger *utils.Logger, tokens *TokenSource) (*Session, error) {
	if appCfg == nil || appCfg.CTrader == nil {
		return nil, errors.New("ctrader session: AppConfig or CTraderConfig cannot be nil")
	}
	cfg := appCfg.CTrader

	if logger == nil {
		logger = utils.NewLogger(utils.Info)
		logger.LogWarn("cTrader Session: Logger not provided, using default logger.")
	}
	if tokens == nil {
		return nil, errors.New("ctrader session: TokenSource cannot be nil")
	}
	if cfg.AccountID <= 0 {
		return nil, errors.New("ctrader session: AccountID is required")
	}
	if cfg.Host == "" {
		cfg.Host = "demo.ctraderapi.com"
		logger.LogWarn("cTrader Session: Host not set, defaulting to %s", cfg.Host)
	}
	if cfg.Port <= 0 {
		cfg.Port = 5036
	}
	if cfg.ConnectTimeoutSec <= 0 {
		cfg.ConnectTimeoutSec = 20
	}
	if cfg.ResponseTimeoutSec <= 0 {
		cfg.ResponseTimeoutSec = 10
	}
	if cfg.HeartbeatSec <= 0 {
		cfg.HeartbeatSec = 10
	}

	return &Session{
		cfg:            cfg,
		logger:         logger,
		tokens:         tokens,
		url:            fmt.Sprintf("wss://%s:%d", cfg.Host, cfg.Port),
		symbolToID:     make(map[string]int64),
		idToSymbol:     make(map[int64]string),
		subscribed:     make(map[int64]bool),
		quotes:         make(map[int64]quoteState),
		connectTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		respTimeout:    time.Duration(cfg.ResponseTimeoutSec) * time.Second,
		heartbeat:      time.Duration(cfg.HeartbeatSec) * time.Second,
	}, nil
}

// Connect dials the venue, starts the reader and heartbeat tasks and runs
// application plus account authentication.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.LogInfo("cTrader Session: connecting to %s...", s.url)
	dialer := websocket.Dialer{HandshakeTimeout: s.connectTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ctrader: dial %s: %w", s.url, err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.pending = make(map[string]chan Envelope)
	s.readerDone = done
	s.mu.Unlock()

	go s.readLoop(conn, done)
	go s.heartbeatLoop(done)

	if err := s.authenticate(ctx); err != nil {
		_ = s.Close()
		return err
	}
	s.logger.LogInfo("cTrader Session: connected and authenticated.")
	return nil
}

// Connected reports whether the socket is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close tears down the socket and waits briefly for the reader to exit.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.conn == nil {
		s.connected = false
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	conn := s.conn
	s.conn = nil
	done := s.readerDone
	s.mu.Unlock()

	err := conn.Close()
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			s.logger.LogWarn("cTrader Session: reader did not exit promptly on close.")
		}
	}
	s.logger.LogInfo("cTrader Session: connection closed.")
	return err
}

// send transmits one frame with a fresh correlation ID. With awaitResponse,
// the wait entry is registered under the sender's lock before the frame
// leaves, so the reader can never observe the frame first; the call then
// blocks until the reader resolves the entry, the response timeout passes,
// the reader exits, or ctx is cancelled. The entry is removed on every
// exit path.
func (s *Session) send(ctx context.Context, payloadType int, payload interface{}, awaitResponse bool) (Envelope, error) {
	s.mu.Lock()
	if !s.connected || s.conn == nil {
		s.mu.Unlock()
		return Envelope{}, ErrNotConnected
	}
	conn := s.conn
	done := s.readerDone
	s.msgID++
	id := strconv.FormatUint(s.msgID, 10)
	var ch chan Envelope
	if awaitResponse {
		ch = make(chan Envelope, 1)
		s.pending[id] = ch
	}
	s.mu.Unlock()

	if awaitResponse {
		defer func() {
			s.mu.Lock()
			delete(s.pending, id)
			s.mu.Unlock()
		}()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("ctrader: marshal payload type %d: %w", payloadType, err)
	}
	env := Envelope{ClientMsgID: id, PayloadType: payloadType, Payload: raw}

	s.writeMu.Lock()
	err = conn.WriteJSON(env)
	s.writeMu.Unlock()
	if err != nil {
		return Envelope{}, fmt.Errorf("ctrader: write frame %d: %w", payloadType, err)
	}
	if !awaitResponse {
		return Envelope{}, nil
	}

	timer := time.NewTimer(s.respTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		s.logger.LogWarn("cTrader Session: timed out waiting for reply to payloadType=%d (clientMsgId=%s)", payloadType, id)
		return Envelope{}, ErrResponseTimeout
	case <-done:
		// Reader exited: the reply can never arrive.
		return Envelope{}, ErrNotConnected
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// readLoop is the single background reader for one connection.
func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.mu.Lock()
			wasConnected := s.connected
			s.connected = false
			s.mu.Unlock()
			if wasConnected {
				s.logger.LogWarn("cTrader Session: read loop terminated: %v", err)
			}
			return
		}

		switch env.PayloadType {
		case PayloadSpotEvent:
			s.handleSpotEvent(env.Payload)
		case PayloadHeartbeatEvent:
			// Venue liveness probe; nothing to correlate.
		default:
			s.dispatch(env)
		}
	}
}

// dispatch resolves the wait entry matching the frame's correlation ID.
// The payload type is not checked here: the waiter inspects it, so an
// error-shaped reply still resolves its caller.
func (s *Session) dispatch(env Envelope) {
	s.mu.Lock()
	ch, ok := s.pending[env.ClientMsgID]
	s.mu.Unlock()
	if !ok {
		s.logger.LogWarn("cTrader Session: dropping unmatched frame (payloadType=%d, clientMsgId=%q)", env.PayloadType, env.ClientMsgID)
		return
	}
	select {
	case ch <- env:
	default:
		// Entry already resolved; late duplicate dropped.
	}
}

func (s *Session) handleSpotEvent(raw json.RawMessage) {
	var ev SpotEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.LogWarn("cTrader Session: malformed spot event: %v", err)
		return
	}

	s.quoteMu.Lock()
	q := s.quotes[ev.SymbolID]
	if ev.Bid > 0 {
		q.bid = float64(ev.Bid) / priceScale
	}
	if ev.Ask > 0 {
		q.ask = float64(ev.Ask) / priceScale
	}
	q.timestamp = time.Now().UTC()
	s.quotes[ev.SymbolID] = q
	s.quoteMu.Unlock()
}

func (s *Session) heartbeatLoop(done chan struct{}) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := s.send(context.Background(), PayloadHeartbeatEvent, heartbeatEvent{}, false); err != nil {
				s.logger.LogDebug("cTrader Session: heartbeat send failed: %v", err)
				return
			}
		}
	}
}

func (s *Session) authenticate(ctx context.Context) error {
	if err := s.authApplication(ctx); err != nil {
		return err
	}
	return s.authAccount(ctx)
}

func (s *Session) authApplication(ctx context.Context) error {
	resp, err := s.send(ctx, PayloadApplicationAuthReq, ApplicationAuthReq{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
	}, true)
	if err != nil {
		return fmt.Errorf("ctrader: application auth: %w", err)
	}
	if errRes, isErr := decodeError(resp); isErr {
		return fmt.Errorf("ctrader: application auth rejected: %s: %s", errRes.ErrorCode, errRes.Description)
	}
	s.logger.LogInfo("cTrader Session: application authenticated.")
	return nil
}

// authAccount authorizes the trading account. On a token-shaped rejection
// the OAuth pair is refreshed once and the request retried once; a second
// rejection is terminal.
func (s *Session) authAccount(ctx context.Context) error {
	refreshed := false
	for {
		resp, err := s.send(ctx, PayloadAccountAuthReq, AccountAuthReq{
			CtidTraderAccountID: s.cfg.AccountID,
			AccessToken:         s.tokens.AccessToken(),
		}, true)
		if err != nil {
			return fmt.Errorf("ctrader: account auth: %w", err)
		}

		errRes, isErr := decodeError(resp)
		if !isErr {
			s.logger.LogInfo("cTrader Session: account %d authenticated.", s.cfg.AccountID)
			return nil
		}
		if !refreshed && isTokenError(errRes.ErrorCode) {
			s.logger.LogWarn("cTrader Session: account auth rejected (%s), refreshing token and retrying once.", errRes.ErrorCode)
			if rErr := s.tokens.Refresh(ctx); rErr != nil {
				return fmt.Errorf("ctrader: token refresh after %s failed: %w", errRes.ErrorCode, rErr)
			}
			refreshed = true
			continue
		}
		return fmt.Errorf("ctrader: account auth rejected: %s: %s", errRes.ErrorCode, errRes.Description)
	}
}

// EnsureSymbolID resolves a symbol name to the venue's numeric ID, fetching
// the account's symbols list on a cache miss. Gold goes through a candidate
// list because brokers suffix their metals tickers unpredictably.
func (s *Session) EnsureSymbolID(ctx context.Context, symbolName string) (int64, error) {
	name := strings.ToUpper(strings.TrimSpace(symbolName))
	s.symbolMu.RLock()
	id, ok := s.symbolToID[name]
	s.symbolMu.RUnlock()
	if ok {
		return id, nil
	}

	s.logger.LogDebug("cTrader Session: resolving symbol %s...", name)
	resp, err := s.send(ctx, PayloadSymbolsListReq, SymbolsListReq{CtidTraderAccountID: s.cfg.AccountID}, true)
	if err != nil {
		return 0, fmt.Errorf("ctrader: symbols list: %w", err)
	}
	if errRes, isErr := decodeError(resp); isErr {
		return 0, fmt.Errorf("ctrader: symbols list rejected: %s: %s", errRes.ErrorCode, errRes.Description)
	}
	var list SymbolsListRes
	if err := json.Unmarshal(resp.Payload, &list); err != nil {
		return 0, fmt.Errorf("ctrader: decode symbols list: %w", err)
	}

	s.symbolMu.Lock()
	for _, sym := range list.Symbol {
		upper := strings.ToUpper(sym.SymbolName)
		s.symbolToID[upper] = sym.SymbolID
		s.idToSymbol[sym.SymbolID] = sym.SymbolName
	}
	s.symbolMu.Unlock()

	s.symbolMu.RLock()
	defer s.symbolMu.RUnlock()
	if id, ok := s.symbolToID[name]; ok {
		s.logger.LogDebug("cTrader Session: symbol %s -> %d", name, id)
		return id, nil
	}
	if name == "XAUUSD" {
		if id, ok := s.goldFallbackLocked(); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("ctrader: symbol %s not offered by account %d", name, s.cfg.AccountID)
}

// goldFallbackLocked tries broker-specific gold tickers. Callers hold
// symbolMu for reading.
func (s *Session) goldFallbackLocked() (int64, bool) {
	for _, candidate := range []string{"XAUUSD.", "XAUUSDM", "XAUUSD.R", "XAU/USD", "GOLD"} {
		if id, ok := s.symbolToID[candidate]; ok {
			s.logger.LogInfo("cTrader Session: gold resolved via candidate %s -> %d", candidate, id)
			return id, true
		}
	}
	var firstName string
	var firstID int64
	for nm, id := range s.symbolToID {
		if !strings.Contains(nm, "XAU") && !strings.Contains(nm, "GOLD") {
			continue
		}
		if strings.Contains(nm, "XAUUSD") {
			s.logger.LogInfo("cTrader Session: gold resolved via mask %s -> %d", nm, id)
			return id, true
		}
		if firstName == "" {
			firstName, firstID = nm, id
		}
	}
	if firstName != "" {
		s.logger.LogInfo("cTrader Session: gold resolved via first match %s -> %d", firstName, firstID)
		return firstID, true
	}
	return 0, false
}

// SubscribeSpots asks the venue to stream ticks for a symbol. The request is
// fire-and-forget; ticks simply start arriving at the reader.
func (s *Session) SubscribeSpots(ctx context.Context, symbolID int64) error {
	s.symbolMu.Lock()
	if s.subscribed[symbolID] {
		s.symbolMu.Unlock()
		return nil
	}
	s.subscribed[symbolID] = true
	s.symbolMu.Unlock()

	_, err := s.send(ctx, PayloadSubscribeSpotsReq, SubscribeSpotsReq{
		CtidTraderAccountID: s.cfg.AccountID,
		SymbolID:            []int64{symbolID},
	}, false)
	if err != nil {
		s.symbolMu.Lock()
		delete(s.subscribed, symbolID)
		s.symbolMu.Unlock()
		return fmt.Errorf("ctrader: subscribe spots for %d: %w", symbolID, err)
	}
	s.logger.LogDebug("cTrader Session: subscribed to spots for symbol %d", symbolID)
	return nil
}

// GetQuote implements broker.Broker. The first call for a symbol resolves
// and subscribes it, then waits for the venue's first full tick.
func (s *Session) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	symbolID, err := s.EnsureSymbolID(ctx, symbol)
	if err != nil {
		return broker.Quote{}, err
	}
	if err := s.SubscribeSpots(ctx, symbolID); err != nil {
		return broker.Quote{}, err
	}

	deadline := time.Now().Add(s.respTimeout)
	for {
		s.quoteMu.RLock()
		q, ok := s.quotes[symbolID]
		s.quoteMu.RUnlock()
		if ok && q.bid > 0 && q.ask > 0 {
			return broker.Quote{
				Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
				Bid:       q.bid,
				Ask:       q.ask,
				Price:     (q.bid + q.ask) / 2,
				Timestamp: q.timestamp,
			}, nil
		}
		if time.Now().After(deadline) {
			return broker.Quote{}, fmt.Errorf("ctrader: no quote for %s within %s", symbol, s.respTimeout)
		}
		select {
		case <-ctx.Done():
			return broker.Quote{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func decodeError(env Envelope) (ErrorRes, bool) {
	if env.PayloadType != PayloadErrorRes {
		return ErrorRes{}, false
	}
	var errRes ErrorRes
	if err := json.Unmarshal(env.Payload, &errRes); err != nil {
		return ErrorRes{ErrorCode: "UNPARSEABLE_ERROR"}, true
	}
	return errRes, true
}

func isTokenError(code string) bool {
	code = strings.ToUpper(code)
	return strings.Contains(code, "ACCESS_TOKEN") || strings.Contains(code, "TOKEN_EXPIRED") || code == "INVALID_TOKEN"
}
