package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
)

const (
	// Time allowed to write a frame to the gateway
	writeWait = 10 * time.Second

	// Time allowed between pings from the gateway
	pongWait = 60 * time.Second

	// Maximum frame size accepted from the gateway
	maxFrameSize = 64 << 10

	defaultHandshakeTimeout = 10 * time.Second
)

// Gateway frame types
const (
	frameSubscribe = "subscribe"
	frameToken     = "token"
	frameMessage   = "message"
	frameError     = "error"
)

// frame is the JSON envelope exchanged with the messaging gateway
type frame struct {
	Type         string             `json:"type"`
	VAPIDKey     string             `json:"vapid_key,omitempty"`
	ScriptURL    string             `json:"script_url,omitempty"`
	Scope        string             `json:"scope,omitempty"`
	Token        string             `json:"token,omitempty"`
	Notification *push.Notification `json:"notification,omitempty"`
	Data         map[string]any     `json:"data,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// WebSocketSDK talks to the messaging gateway over a websocket. A subscribe
// frame is answered by a token frame; message frames follow on the same
// connection.
type WebSocketSDK struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	log    logger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	token   string
	tokenCh chan frame
	handler func(push.Payload)
	closed  bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewWebSocketSDK creates an SDK for the gateway at url. Nothing is dialed
// until the first GetToken.
func NewWebSocketSDK(url string, handshakeTimeout time.Duration, log logger.Logger) *WebSocketSDK {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	if log == nil {
		log = push.GetLogger().Module("web")
	}
	return &WebSocketSDK{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header: http.Header{},
		log:    log,
	}
}

// SetMessageHandler installs the handler for message frames
func (s *WebSocketSDK) SetMessageHandler(fn func(push.Payload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// GetToken returns the token of the live subscription, subscribing first if needed
func (s *WebSocketSDK) GetToken(ctx context.Context, opts TokenOptions) (string, error) {
	if opts.Registration == nil {
		return "", errors.Newf("no worker registration to subscribe").
			Component("push.web").
			Category(errors.CategoryServiceWorker).
			Build()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", push.ErrNotInitialized
	}
	if s.conn != nil && s.token != "" {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	if s.conn == nil {
		if err := s.dialLocked(ctx); err != nil {
			s.mu.Unlock()
			return "", err
		}
	}
	conn, tokenCh := s.conn, s.tokenCh
	s.mu.Unlock()

	err := s.write(conn, frame{
		Type:      frameSubscribe,
		VAPIDKey:  opts.VAPIDKey,
		ScriptURL: opts.Registration.ScriptURL,
		Scope:     opts.Registration.Scope,
	})
	if err != nil {
		return "", s.messagingError(err, "subscribe")
	}

	select {
	case f, ok := <-tokenCh:
		if !ok {
			return "", s.messagingError(errors.NewStd("gateway connection closed"), "await_token")
		}
		if f.Type == frameError {
			return "", s.messagingError(errors.NewStd(f.Error), "await_token")
		}
		s.mu.Lock()
		if s.conn == conn {
			s.token = f.Token
		}
		s.mu.Unlock()
		return f.Token, nil
	case <-ctx.Done():
		return "", errors.New(ctx.Err()).
			Component("push.web").
			Category(errors.CategoryTimeout).
			Context("operation", "await_token").
			Build()
	}
}

// dialLocked connects and starts the read pump; s.mu must be held
func (s *WebSocketSDK) dialLocked(ctx context.Context) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.New(err).
			Component("push.web").
			Category(errors.CategoryMessaging).
			Context("operation", "dial_gateway").
			Context("url", s.url).
			Build()
	}

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	s.conn = conn
	s.token = ""
	s.tokenCh = make(chan frame, 1)

	s.wg.Add(1)
	go s.readPump(conn, s.tokenCh)

	s.log.Debug("connected to messaging gateway", logger.String("url", s.url))
	return nil
}

func (s *WebSocketSDK) readPump(conn *websocket.Conn, tokenCh chan frame) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.token = ""
		}
		s.mu.Unlock()
		close(tokenCh)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("messaging gateway connection lost", logger.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Debug("ignoring malformed gateway frame", logger.Error(err))
			continue
		}

		switch f.Type {
		case frameToken, frameError:
			select {
			case tokenCh <- f:
			default:
			}
		case frameMessage:
			s.mu.Lock()
			handler := s.handler
			s.mu.Unlock()
			if handler != nil {
				handler(push.Payload{Notification: f.Notification, Data: f.Data})
			}
		default:
			s.log.Trace("ignoring gateway frame", logger.String("type", f.Type))
		}
	}
}

func (s *WebSocketSDK) write(conn *websocket.Conn, f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

func (s *WebSocketSDK) messagingError(err error, operation string) error {
	return errors.New(err).
		Component("push.web").
		Category(errors.CategoryMessaging).
		Context("operation", operation).
		Build()
}

// Close disconnects from the gateway and waits for the read pump to exit
func (s *WebSocketSDK) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		_ = conn.Close()
	}

	s.wg.Wait()
	return nil
}
