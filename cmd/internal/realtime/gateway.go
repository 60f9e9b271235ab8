package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/guy4carbs/goldcoastfinancial-sub000/contracts/chat/v1"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	errNotAuthenticated = "Not authenticated"
)

// GatewayOptions tunes the websocket gateway. Zero values fall back to
// secure defaults.
type GatewayOptions struct {
	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateFrames int
	RateWindow time.Duration

	// Origin policy: Origin is required by default and only localhost
	// is allowed by default (secure-by-default for dev).
	OriginRequired bool
	AllowedOrigins []string

	// DevInsecure is a dev-only knob (TLS verification). It is not an
	// origin policy.
	DevInsecure bool
}

// DefaultGatewayOptions returns the secure defaults.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateFrames:       rateLimitFrames,
		RateWindow:       rateLimitWindow,
		OriginRequired:   true,
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
	}
}

// Gateway is the websocket entrypoint of the conversation fan-out
// service. It decodes inbound frames into the fixed command set,
// drives the connection lifecycle, and routes validated commands to the
// registry, chat store, and broadcaster.
type Gateway struct {
	log         *slog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	store       ChatStore
	metrics     *Metrics

	opts GatewayOptions

	// Derived for websocket.Accept origin checks. Accept() authorizes
	// same-host origins by default, but cross-origin requires
	// OriginPatterns.
	originPatterns []string
}

// NewGateway constructs a gateway with secure defaults filled in.
// When registry/store are nil, in-memory implementations are used.
func NewGateway(log *slog.Logger, registry *Registry, store ChatStore, metrics *Metrics, opts GatewayOptions) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if registry == nil {
		registry = NewRegistry(log)
	}
	if store == nil {
		store = NewInMemoryChatStore()
	}

	def := DefaultGatewayOptions()
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ReadIdleTimeout <= 0 {
		opts.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if opts.SendQueueSize < wsMinSendQueueSize {
		opts.SendQueueSize = def.SendQueueSize
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = def.HeartbeatEvery
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if opts.RateFrames <= 0 {
		opts.RateFrames = def.RateFrames
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = def.RateWindow
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = def.AllowedOrigins
	}

	return &Gateway{
		log:            log,
		registry:       registry,
		broadcaster:    NewBroadcaster(log, registry, metrics),
		store:          store,
		metrics:        metrics,
		opts:           opts,
		originPatterns: deriveOriginPatterns(opts.AllowedOrigins),
	}
}

// Broadcaster exposes the fan-out side so server-internal producers can
// push direct notifications to connected users.
func (g *Gateway) Broadcaster() *Broadcaster { return g.broadcaster }

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the
// command loop until the transport closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.opts.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}

	client := NewClient(sessionID, g.opts.SendQueueSize)

	g.metrics.ConnOpened()
	defer g.metrics.ConnClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Per-socket state machine: Unauthenticated -> Authenticated is the
	// only forward transition; once set, userID is fixed for the life of
	// the socket. The mutex covers the handoff between the read loop,
	// which sets it, and the writer/heartbeat goroutines, which read it
	// through shutdown.
	var (
		closeOnce sync.Once
		idMu      sync.Mutex
		userID    string
	)
	setUserID := func(id string) {
		idMu.Lock()
		userID = id
		idMu.Unlock()
	}
	getUserID := func() string {
		idMu.Lock()
		defer idMu.Unlock()
		return userID
	}

	// shutdown is idempotent. On entry to the Closed state the registry
	// entry is removed, but only when it still points at this exact
	// client: a newer login for the same user must not be deregistered
	// by this socket's close event.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if uid := getUserID(); uid != "" {
				g.registry.DeregisterClient(uid, client)
			}
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.opts.RateFrames, g.opts.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Set when this session was superseded by a newer login
				// for the same user; tear the transport down too.
				shutdown(websocket.StatusGoingAway, "session replaced")
				return
			case payload := <-client.Send:
				if err := writePayload(ctx, conn, payload, g.opts.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.opts.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.opts.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.opts.ReadIdleTimeout)
		frame, err := readFrame(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				// Protocol error: swallowed and logged, no frame back,
				// connection stays open.
				g.log.Info("ws.frame.bad_json", "session_id", sessionID, "err", err)
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if !v1.KnownInboundType(frame.Type) {
			g.log.Info("ws.frame.unknown_type", "session_id", sessionID, "type", frame.Type)
			continue readLoop
		}

		g.metrics.FrameHandled(frame.Type)

		switch frame.Type {
		case v1.TypeAuth:
			if id, ok := g.onAuth(ctx, client, sessionID, getUserID(), frame); ok {
				setUserID(id)
			}

		case v1.TypeJoinConversation:
			g.onJoinConversation(ctx, client, getUserID(), frame)

		case v1.TypeSendMessage:
			g.onSendMessage(ctx, client, sessionID, getUserID(), frame)

		case v1.TypeMarkRead:
			g.onMarkRead(ctx, client, sessionID, getUserID(), frame)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

// onAuth loads the user's durable conversation memberships and registers
// the connection. On store failure the error is logged and the socket
// stays open but unauthenticated; no frame is sent back.
func (g *Gateway) onAuth(ctx context.Context, client *Client, sessionID, currentUserID string, frame v1.Frame) (string, bool) {
	uid := strings.TrimSpace(frame.UserID)
	if uid == "" {
		g.log.Info("ws.auth.missing_user", "session_id", sessionID)
		return "", false
	}
	if currentUserID != "" && currentUserID != uid {
		// One-way state machine: a socket authenticates once.
		g.trySendError(ctx, client, "Already authenticated")
		return "", false
	}

	convs, err := g.store.ConversationsByUser(ctx, uid)
	if err != nil {
		g.metrics.PersistFailed()
		g.log.Error("ws.auth.fail", "session_id", sessionID, "user_id", uid, "err", err)
		return "", false
	}

	displaced := g.registry.Register(uid, client, convs)
	if displaced != nil {
		// Latest connection wins; the older socket is shut down and
		// never receives further broadcasts.
		displaced.Close()
	}

	g.enqueueJSON(ctx, client, v1.NewAuthSuccess())
	g.log.Info("ws.auth.ok", "session_id", sessionID, "user_id", uid, "conversations", len(convs))
	return uid, true
}

func (g *Gateway) onJoinConversation(ctx context.Context, client *Client, userID string, frame v1.Frame) {
	if userID == "" {
		g.trySendError(ctx, client, errNotAuthenticated)
		return
	}

	convID := strings.TrimSpace(frame.ConversationID)
	if convID == "" {
		g.trySendError(ctx, client, "Missing conversationId")
		return
	}

	g.registry.AddConversation(userID, convID)
}

// onSendMessage persists first and broadcasts only after persistence
// confirms: a message is never broadcast before it is durable.
func (g *Gateway) onSendMessage(ctx context.Context, client *Client, sessionID, userID string, frame v1.Frame) {
	if userID == "" {
		g.trySendError(ctx, client, errNotAuthenticated)
		return
	}

	convID := strings.TrimSpace(frame.ConversationID)
	if convID == "" {
		g.trySendError(ctx, client, "Missing conversationId")
		return
	}
	content := frame.Content
	if strings.TrimSpace(content) == "" {
		g.trySendError(ctx, client, "Empty content")
		return
	}
	if len([]rune(content)) > maxContentChars {
		g.trySendError(ctx, client, fmt.Sprintf("Message too long: max=%d chars", maxContentChars))
		return
	}

	msg, err := g.store.CreateMessage(ctx, CreateMessageInput{
		ConversationID: convID,
		SenderID:       userID,
		SenderName:     frame.SenderName,
		Content:        content,
		MessageType:    frame.MessageType,
	})
	if err != nil {
		// Persistence failure: logged, no client-visible frame, no
		// retry; the connection remains usable for later commands.
		g.metrics.PersistFailed()
		g.log.Error("ws.send.persist.fail", "session_id", sessionID, "user_id", userID, "conversation_id", convID, "err", err)
		return
	}

	g.broadcaster.Broadcast(msg.ConversationID, v1.WrapMessage(msg))
}

// onMarkRead writes through to persistence; the in-memory conversation
// set is deliberately not touched and there is no acknowledgement frame.
func (g *Gateway) onMarkRead(ctx context.Context, client *Client, sessionID, userID string, frame v1.Frame) {
	if userID == "" {
		g.trySendError(ctx, client, errNotAuthenticated)
		return
	}

	convID := strings.TrimSpace(frame.ConversationID)
	if convID == "" {
		g.trySendError(ctx, client, "Missing conversationId")
		return
	}

	if err := g.store.UpdateLastRead(ctx, userID, convID); err != nil {
		g.metrics.PersistFailed()
		g.log.Error("ws.mark_read.fail", "session_id", sessionID, "user_id", userID, "conversation_id", convID, "err", err)
	}
}

// ---- send helpers ----

func (g *Gateway) trySendError(ctx context.Context, client *Client, msg string) {
	g.enqueueJSON(ctx, client, v1.NewError(msg))
}

func (g *Gateway) enqueueJSON(ctx context.Context, client *Client, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		g.log.Error("ws.marshal.fail", "err", err)
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- payload:
		return true
	default:
		return false
	}
}

// ---- frame IO ----

func readFrame(ctx context.Context, conn *websocket.Conn) (v1.Frame, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Frame{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Frame{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var frame v1.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return v1.Frame{}, errBadJSON{err}
	}
	return frame, nil
}

func writePayload(parent context.Context, conn *websocket.Conn, payload json.RawMessage, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, payload)
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.opts.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.opts.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.opts.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host
	// using filepath.Match patterns. Keep this strict: only hosts from
	// the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}
