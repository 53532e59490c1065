package nonkyc

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"

	"github.com/coachpo/bookwire/errs"
)

const (
	// wsNonceLength is the venue-required length of the login nonce.
	wsNonceLength = 14

	authAttemptBudget = 3
	authBaseTimeout   = 5 * time.Second
	authBackoffBase   = time.Second

	headerAPIKey   = "X-API-KEY"
	headerAPINonce = "X-API-NONCE"
	headerAPISign  = "X-API-SIGN"
	nonceAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// signer produces NonKYC request signatures for REST calls and drives the
// websocket login handshake.
type signer struct {
	apiKey    string
	apiSecret string
	clock     func() time.Time

	// Zero values fall back to the package defaults.
	baseTimeout time.Duration
	backoffBase time.Duration
}

func newSigner(apiKey, apiSecret string, clock func() time.Time) *signer {
	if clock == nil {
		clock = time.Now
	}
	return &signer{apiKey: apiKey, apiSecret: apiSecret, clock: clock}
}

func (s *signer) attemptTimeout() time.Duration {
	if s.baseTimeout > 0 {
		return s.baseTimeout
	}
	return authBaseTimeout
}

func (s *signer) retryBackoff() time.Duration {
	if s.backoffBase > 0 {
		return s.backoffBase
	}
	return authBackoffBase
}

func (s *signer) hmacHex(message string) string {
	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *signer) restNonce() string {
	return strconv.FormatInt(s.clock().UnixMilli(), 10)
}

// signGET signs a GET request. The signed message covers the API key, the
// full URL including any query string, and a millisecond nonce; the URL must
// be byte identical to the one transmitted.
func (s *signer) signGET(fullURL string) authHeaders {
	nonce := s.restNonce()
	return authHeaders{
		key:       s.apiKey,
		nonce:     nonce,
		signature: s.hmacHex(s.apiKey + fullURL + nonce),
	}
}

// signPOST signs a POST request over the exact body bytes placed on the wire.
func (s *signer) signPOST(fullURL string, body []byte) authHeaders {
	nonce := s.restNonce()
	return authHeaders{
		key:       s.apiKey,
		nonce:     nonce,
		signature: s.hmacHex(s.apiKey + fullURL + string(body) + nonce),
	}
}

type authHeaders struct {
	key       string
	nonce     string
	signature string
}

func (h authHeaders) apply(req *http.Request) {
	req.Header.Set(headerAPIKey, h.key)
	req.Header.Set(headerAPINonce, h.nonce)
	req.Header.Set(headerAPISign, h.signature)
}

type loginFrame struct {
	Method string      `json:"method"`
	Params loginParams `json:"params"`
}

type loginParams struct {
	PKey      string `json:"pKey"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// loginRequest builds the websocket login frame. The nonce is a fixed length
// random alphanumeric string and the signature covers the nonce alone.
func (s *signer) loginRequest() (loginFrame, error) {
	nonce, err := randomNonce(wsNonceLength)
	if err != nil {
		return loginFrame{}, err
	}
	return loginFrame{
		Method: methodLogin,
		Params: loginParams{PKey: s.apiKey, Nonce: nonce, Signature: s.hmacHex(nonce)},
	}, nil
}

func randomNonce(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf), nil
}

// authenticate performs the login handshake on a freshly dialed connection.
// Each attempt gets an escalating deadline (base x attempt number) and
// retries wait with exponential backoff. An explicit credential rejection is
// terminal and consumes no further attempts; exhausting the attempt budget
// yields an auth timeout error, leaving the caller to decide whether a new
// connection is worth trying.
func (s *signer) authenticate(ctx context.Context, conn *websocket.Conn) error {
	var lastErr error
	for attempt := 1; attempt <= authAttemptBudget; attempt++ {
		if attempt > 1 {
			delay := s.retryBackoff() * (1 << (attempt - 2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err := s.authenticateOnce(ctx, conn, attempt)
		if err == nil {
			return nil
		}
		if errs.HasCode(err, errs.CodeAuthRejected) {
			return err
		}
		lastErr = err
	}
	return errs.New("nonkyc", errs.CodeAuthTimeout,
		errs.WithMessage("login attempts exhausted"),
		errs.WithRemediation("check connectivity to the venue websocket endpoint"),
		errs.WithCause(lastErr))
}

func (s *signer) authenticateOnce(ctx context.Context, conn *websocket.Conn, attempt int) error {
	frame, err := s.loginRequest()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout()*time.Duration(attempt))
	defer cancel()

	if err := conn.Write(attemptCtx, websocket.MessageText, payload); err != nil {
		return errs.New("nonkyc", errs.CodeAuthTimeout,
			errs.WithMessage("send login request"), errs.WithCause(err))
	}
	for {
		_, data, err := conn.Read(attemptCtx)
		if err != nil {
			return errs.New("nonkyc", errs.CodeAuthTimeout,
				errs.WithMessage("await login response"), errs.WithCause(err))
		}
		answered, outcome := parseLoginResponse(data)
		if !answered {
			// Market data may interleave with the login response on the
			// multiplexed connection; keep reading.
			continue
		}
		return outcome
	}
}

// parseLoginResponse reports whether the frame answers the login request and,
// when it does, whether the venue accepted the credentials.
func parseLoginResponse(data []byte) (bool, error) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return false, nil
	}
	if strings.TrimSpace(frame.Method) != "" {
		return false, nil
	}
	if frame.Error != nil {
		return true, errs.New("nonkyc", errs.CodeAuthRejected,
			errs.WithMessage("login rejected"),
			errs.WithRawCode(strconv.Itoa(frame.Error.Code)),
			errs.WithRawMessage(frame.Error.text()),
			errs.WithCanonicalCode(errs.CanonicalAuthFailed))
	}
	if len(frame.Result) == 0 {
		return false, nil
	}
	var accepted bool
	if err := json.Unmarshal(frame.Result, &accepted); err != nil {
		// Result acks to other requests are not booleans; not ours.
		return false, nil
	}
	if !accepted {
		return true, errs.New("nonkyc", errs.CodeAuthRejected,
			errs.WithMessage("login rejected"),
			errs.WithCanonicalCode(errs.CanonicalAuthFailed))
	}
	return true, nil
}
