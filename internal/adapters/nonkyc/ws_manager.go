package nonkyc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"

	"github.com/coachpo/bookwire/errs"
	"github.com/coachpo/bookwire/internal/observability"
)

const (
	wsControlMessageInterval = 250 * time.Millisecond
	wsControlWriteTimeout    = 5 * time.Second
	wsPingInterval           = 30 * time.Second
	wsPingTimeout            = 5 * time.Second
	wsMaxReconnectInterval   = 20 * time.Second
	wsReadLimit              = 2 * 1024 * 1024
	wsReadyTimeout           = 10 * time.Second
	wsStopGracePeriod        = 2 * time.Second
)

// wsSubscription identifies one channel subscription on the multiplexed feed.
type wsSubscription struct {
	Method string
	Symbol string
	Limit  int
}

func (s wsSubscription) key() string {
	return strings.ToLower(strings.TrimSpace(s.Method)) + "|" + strings.ToUpper(strings.TrimSpace(s.Symbol))
}

func (s wsSubscription) request() wsRequest {
	return wsRequest{Method: s.Method, Params: wsRequestParams{Symbol: s.Symbol, Limit: s.Limit}}
}

var unsubscribeMethods = map[string]string{
	methodSubscribeTrades:    methodUnsubscribeTrades,
	methodSubscribeOrderbook: methodUnsubscribeOrderbook,
}

// cancelRequest builds the unsubscribe counterpart, when the venue has one.
func (s wsSubscription) cancelRequest() (wsRequest, bool) {
	method, ok := unsubscribeMethods[s.Method]
	if !ok {
		return wsRequest{}, false
	}
	return wsRequest{Method: method, Params: wsRequestParams{Symbol: s.Symbol}}, true
}

// wsRequest is an outbound RPC frame. Params marshals as an object even when
// empty because the venue requires a params object on every request.
type wsRequest struct {
	Method string          `json:"method"`
	Params wsRequestParams `json:"params"`
}

type wsRequestParams struct {
	Symbol string `json:"symbol,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// wsManager owns one multiplexed websocket connection: dialing, the login
// handshake when configured, read and ping loops, reconnection with
// exponential backoff, and replaying the desired subscription set onto each
// new connection.
type wsManager struct {
	name    string
	baseURL string
	ctx     context.Context
	cancel  context.CancelFunc

	conn   *websocket.Conn
	connMu sync.RWMutex

	subsMu        sync.Mutex
	subscriptions map[string]wsSubscription

	handler      func([]byte) error
	authenticate func(ctx context.Context, conn *websocket.Conn) error
	onConnect    func()
	errorChan    chan<- error
	metrics      *providerMetrics

	ready     chan struct{}
	readyOnce sync.Once
	loopDone  chan struct{}

	controlMu       sync.Mutex
	lastControlSend time.Time
}

func newWSManager(ctx context.Context, name, baseURL string, handler func([]byte) error, errCh chan<- error, metrics *providerMetrics) *wsManager {
	managerCtx, cancel := context.WithCancel(ctx)
	return &wsManager{
		name:          name,
		baseURL:       baseURL,
		ctx:           managerCtx,
		cancel:        cancel,
		subscriptions: make(map[string]wsSubscription),
		handler:       handler,
		errorChan:     errCh,
		metrics:       metrics,
		ready:         make(chan struct{}),
		loopDone:      make(chan struct{}),
	}
}

func (sm *wsManager) start() error {
	go func() {
		defer close(sm.loopDone)
		if err := sm.connectLoop(); err != nil && !errors.Is(err, context.Canceled) {
			sm.reportError(fmt.Errorf("%s ws manager: %w", sm.name, err))
		}
	}()

	select {
	case <-sm.ready:
		return nil
	case <-time.After(wsReadyTimeout):
		return fmt.Errorf("timeout waiting for %s websocket connection", sm.name)
	case <-sm.ctx.Done():
		return fmt.Errorf("%s websocket context done: %w", sm.name, sm.ctx.Err())
	}
}

// stop cancels the manager and waits briefly for the connect loop to wind
// down, so callers can close shared channels afterwards.
func (sm *wsManager) stop() {
	sm.cancel()
	sm.connMu.Lock()
	if sm.conn != nil {
		_ = sm.conn.Close(websocket.StatusNormalClosure, "shutdown")
		sm.conn = nil
	}
	sm.connMu.Unlock()

	select {
	case <-sm.loopDone:
	case <-time.After(wsStopGracePeriod):
	}
}

func (sm *wsManager) subscribe(subs []wsSubscription) error {
	if len(subs) == 0 {
		return nil
	}
	sm.subsMu.Lock()
	added := make([]wsSubscription, 0, len(subs))
	for _, sub := range subs {
		key := sub.key()
		if _, exists := sm.subscriptions[key]; !exists {
			sm.subscriptions[key] = sub
			added = append(added, sub)
		}
	}
	sm.subsMu.Unlock()
	if len(added) == 0 {
		return nil
	}
	requests := make([]wsRequest, 0, len(added))
	for _, sub := range added {
		requests = append(requests, sub.request())
	}
	return sm.sendControlRequests(sm.ctx, requests)
}

func (sm *wsManager) unsubscribe(subs []wsSubscription) error {
	if len(subs) == 0 {
		return nil
	}
	sm.subsMu.Lock()
	requests := make([]wsRequest, 0, len(subs))
	for _, sub := range subs {
		key := sub.key()
		if _, exists := sm.subscriptions[key]; exists {
			delete(sm.subscriptions, key)
			if request, ok := sub.cancelRequest(); ok {
				requests = append(requests, request)
			}
		}
	}
	sm.subsMu.Unlock()
	return sm.sendControlRequests(sm.ctx, requests)
}

func (sm *wsManager) connectLoop() error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = wsMaxReconnectInterval

	for {
		select {
		case <-sm.ctx.Done():
			return context.Canceled
		default:
		}

		conn, _, err := websocket.Dial(sm.ctx, sm.baseURL, nil)
		if err != nil {
			sm.reportError(fmt.Errorf("dial %s: %w", sm.baseURL, err))
			sm.metrics.recordWSState(sm.ctx, "dial_error")
			sleep := backoffCfg.NextBackOff()
			if sleep == backoff.Stop {
				sleep = wsMaxReconnectInterval
			}
			select {
			case <-sm.ctx.Done():
				return context.Canceled
			case <-time.After(sleep):
				continue
			}
		}

		conn.SetReadLimit(wsReadLimit)

		if sm.authenticate != nil {
			if err := sm.authenticate(sm.ctx, conn); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				if errs.HasCode(err, errs.CodeAuthRejected) {
					// Rejected credentials never recover on retry.
					sm.reportError(err)
					sm.cancel()
					return err
				}
				sm.reportError(fmt.Errorf("%s login: %w", sm.name, err))
				sm.metrics.recordWSState(sm.ctx, "retry")
				sleep := backoffCfg.NextBackOff()
				if sleep == backoff.Stop {
					sleep = wsMaxReconnectInterval
				}
				select {
				case <-sm.ctx.Done():
					return context.Canceled
				case <-time.After(sleep):
					continue
				}
			}
		}

		sm.connMu.Lock()
		sm.conn = conn
		sm.connMu.Unlock()

		sm.controlMu.Lock()
		sm.lastControlSend = time.Time{}
		sm.controlMu.Unlock()

		sm.readyOnce.Do(func() {
			close(sm.ready)
		})
		sm.metrics.recordWSState(sm.ctx, "connected")

		backoffCfg.Reset()

		if sm.onConnect != nil {
			sm.onConnect()
		}

		if err := sm.subscribeAll(); err != nil {
			sm.reportError(fmt.Errorf("resubscribe after reconnect: %w", err))
		}

		connCtx, connCancel := context.WithCancel(sm.ctx)
		errCh := make(chan error, 2)
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			errCh <- sm.readLoop(connCtx, conn)
		}()

		go func() {
			defer wg.Done()
			errCh <- sm.pingLoop(connCtx, conn)
		}()

		firstErr := <-errCh
		connCancel()

		sm.connMu.Lock()
		if sm.conn == conn {
			sm.conn = nil
		}
		sm.connMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")

		wg.Wait()
		close(errCh)

		aggregatedErr := firstErr
		for e := range errCh {
			if aggregatedErr == nil || errors.Is(aggregatedErr, context.Canceled) || errors.Is(aggregatedErr, context.DeadlineExceeded) {
				aggregatedErr = e
			}
		}
		if aggregatedErr != nil && !errors.Is(aggregatedErr, context.Canceled) && !errors.Is(aggregatedErr, context.DeadlineExceeded) {
			sm.reportError(fmt.Errorf("%s websocket connection loop: %w", sm.name, aggregatedErr))
		}
		sm.metrics.recordWSState(sm.ctx, "retry")

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = wsMaxReconnectInterval
		}
		select {
		case <-sm.ctx.Done():
			return context.Canceled
		case <-time.After(sleep):
		}
	}
}

func (sm *wsManager) subscribeAll() error {
	sm.subsMu.Lock()
	requests := make([]wsRequest, 0, len(sm.subscriptions))
	for _, sub := range sm.subscriptions {
		requests = append(requests, sub.request())
	}
	sm.subsMu.Unlock()
	return sm.sendControlRequests(sm.ctx, requests)
}

// sendControlRequests writes each request under the control message pacing.
// The venue accepts one subscription per request, so requests go out
// individually rather than batched.
func (sm *wsManager) sendControlRequests(ctx context.Context, requests []wsRequest) error {
	if len(requests) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = sm.ctx
	}
	for _, request := range requests {
		data, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", request.Method, err)
		}

		sm.controlMu.Lock()
		if err := sm.waitForControlWindowLocked(ctx); err != nil {
			sm.controlMu.Unlock()
			return err
		}

		sm.connMu.RLock()
		conn := sm.conn
		sm.connMu.RUnlock()
		if conn == nil {
			// Not connected; the desired set replays on the next connect.
			sm.controlMu.Unlock()
			return nil
		}

		writeCtx, cancel := context.WithTimeout(ctx, wsControlWriteTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		sm.controlMu.Unlock()
		if err != nil {
			return fmt.Errorf("write %s request: %w", request.Method, err)
		}
		sm.metrics.recordWSMessage(ctx, "control")
		observability.Log().Debug("websocket control request",
			observability.Field{Key: "manager", Value: sm.name},
			observability.Field{Key: "method", Value: request.Method},
			observability.Field{Key: "symbol", Value: request.Params.Symbol})
	}
	return nil
}

func (sm *wsManager) waitForControlWindowLocked(ctx context.Context) error {
	deadline := sm.lastControlSend.Add(wsControlMessageInterval)
	if time.Now().Before(deadline) {
		wait := time.Until(deadline)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("control window wait canceled: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	sm.lastControlSend = time.Now()
	return nil
}

func (sm *wsManager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		sm.metrics.recordWSMessage(ctx, "data")
		if sm.reportAckError(data) {
			continue
		}
		if sm.handler != nil {
			if err := sm.handler(data); err != nil {
				sm.reportError(fmt.Errorf("handle websocket message: %w", err))
			}
		}
	}
}

// reportAckError surfaces venue errors answering our RPC requests. Both
// successful acks and error frames carry no event method; only the errors
// are worth reporting, and neither is forwarded to the handler.
func (sm *wsManager) reportAckError(data []byte) bool {
	var ack struct {
		Method string       `json:"method"`
		Error  *wsErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return false
	}
	if strings.TrimSpace(ack.Method) != "" {
		return false
	}
	if ack.Error != nil {
		sm.reportError(fmt.Errorf("%s websocket request error %d: %s", sm.name, ack.Error.Code, ack.Error.text()))
		return true
	}
	return false
}

// pingLoop keeps the connection alive with protocol level pings; the venue
// runs a heartbeat and drops peers that go quiet.
func (sm *wsManager) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("websocket ping: %w", err)
			}
		}
	}
}

func (sm *wsManager) reportError(err error) {
	if err == nil {
		return
	}
	select {
	case <-sm.ctx.Done():
	case sm.errorChan <- err:
	default:
	}
}
