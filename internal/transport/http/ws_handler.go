package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/auth"
	"github.com/vovakirdan/strangerchat-server/internal/core"
	"github.com/vovakirdan/strangerchat-server/internal/metrics"
	"github.com/vovakirdan/strangerchat-server/internal/proto"
)

const (
	endpointChat  = "chat"
	endpointAdmin = "admin"

	disconnectTimeout = 5 * time.Second
)

// errForceClosed is returned by the write loop after the core closed the client.
var errForceClosed = errors.New("closed by server")

// WSOptions holds the socket settings shared by both endpoints.
type WSOptions struct {
	MaxMessageBytes    int64
	SendBuffer         int
	RateLimitPerMinute int
	OriginPatterns     []string
}

func (o WSOptions) acceptOptions() *websocket.AcceptOptions {
	return &websocket.AcceptOptions{
		OriginPatterns:     o.OriginPatterns,
		InsecureSkipVerify: len(o.OriginPatterns) == 0,
	}
}

// adminAcceptOptions never skips the origin check: without patterns only
// same-origin browsers and non-browser clients get through.
func (o WSOptions) adminAcceptOptions() *websocket.AcceptOptions {
	return &websocket.AcceptOptions{OriginPatterns: o.OriginPatterns}
}

// ChatHandler upgrades ordinary participants and bridges them to a core.Session.
type ChatHandler struct {
	hub     *core.Hub
	auth    *auth.Service
	opts    WSOptions
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewChatHandler builds the participant WebSocket handler.
func NewChatHandler(hub *core.Hub, authService *auth.Service, opts WSOptions, m *metrics.Metrics, logger *zerolog.Logger) *ChatHandler {
	return &ChatHandler{hub: hub, auth: authService, opts: opts, metrics: m, log: logger}
}

func (h *ChatHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, h.opts.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	h.metrics.ConnectionOpened(endpointChat)
	defer h.metrics.ConnectionClosed(endpointChat)

	client := core.NewClient(uuid.NewString(), h.displayName(r), false, h.opts.SendBuffer)
	session := h.hub.NewSession(client)
	log := h.log.With().Str("client_id", client.ID).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Cleanup must outlive the request context.
	defer func() {
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer dcancel()
		session.Disconnect(dctx)
	}()

	if err := session.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("matchmaking failed")
		conn.Close(websocket.StatusInternalError, "matchmaking failed")
		return
	}

	limiter := newRateLimiter(h.opts.RateLimitPerMinute)
	err = serveLoops(ctx, cancel, conn, client,
		func(ctx context.Context) error { return h.readLoop(ctx, conn, session, limiter, &log) },
		func(event *core.Event) (any, bool) { return chatOutboundFromEvent(event) },
		&log)
	closeConn(conn, err, &log)
}

// displayName resolves the name shown to the partner. Missing or invalid
// tokens fall back to the anonymous name.
func (h *ChatHandler) displayName(r *stdhttp.Request) string {
	token := tokenFromRequest(r)
	if token == "" || h.auth == nil {
		return core.AnonymousName
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ignoring invalid chat token")
		return core.AnonymousName
	}
	return claims.Username
}

func (h *ChatHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, limiter *rateLimiter, log *zerolog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.ChatInbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			log.Debug().Err(err).Msg("dropping malformed chat frame")
			continue
		}

		if inbound.Type == proto.InboundTypeLocation {
			if err := session.UpdateLocation(ctx, inbound.Location, inbound.IsLoggedIn); err != nil {
				log.Warn().Err(err).Msg("update location")
			}
			continue
		}

		if !limiter.allow() {
			log.Debug().Msg("rate limit exceeded, dropping message")
			continue
		}
		if err := session.SendMessage(ctx, inbound.Message); err != nil {
			log.Warn().Err(err).Msg("send message")
		}
	}
}

// AdminHandler upgrades staff sockets and bridges them to a core.AdminSession.
type AdminHandler struct {
	hub     *core.Hub
	auth    *auth.Service
	opts    WSOptions
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewAdminHandler builds the staff WebSocket handler.
func NewAdminHandler(hub *core.Hub, authService *auth.Service, opts WSOptions, m *metrics.Metrics, logger *zerolog.Logger) *AdminHandler {
	return &AdminHandler{hub: hub, auth: authService, opts: opts, metrics: m, log: logger}
}

func (h *AdminHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	claims, authErr := h.auth.ValidateToken(staffToken(r))

	conn, err := websocket.Accept(w, r, h.opts.adminAcceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if authErr != nil || !claims.IsStaff {
		h.log.Debug().Err(authErr).Msg("rejecting non-staff admin socket")
		conn.Close(websocket.StatusPolicyViolation, "staff only")
		return
	}
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	h.metrics.ConnectionOpened(endpointAdmin)
	defer h.metrics.ConnectionClosed(endpointAdmin)

	client := core.NewClient(uuid.NewString(), core.AdminName, true, h.opts.SendBuffer)
	session := h.hub.NewAdminSession(client, claims.Username)
	log := h.log.With().Str("client_id", client.ID).Str("operator", claims.Username).Logger()
	log.Info().Msg("operator connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	defer func() {
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer dcancel()
		session.Disconnect(dctx)
	}()

	err = serveLoops(ctx, cancel, conn, client,
		func(ctx context.Context) error { return h.readLoop(ctx, conn, session, &log) },
		adminOutboundFromEvent,
		&log)
	closeConn(conn, err, &log)
}

func (h *AdminHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.AdminSession, log *zerolog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.AdminInbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			log.Debug().Err(err).Msg("malformed admin frame")
			inbound = proto.AdminInbound{}
		}

		if err := session.Handle(ctx, adminCommandFromInbound(inbound)); err != nil {
			log.Warn().Err(err).Str("action", inbound.Action).Msg("admin command")
		}
	}
}

// serveLoops runs the reader and writer until either ends, then stops the other.
func serveLoops(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	client *core.Client,
	read func(context.Context) error,
	mapEvent func(*core.Event) (any, bool),
	log *zerolog.Logger,
) error {
	errCh := make(chan error, 2)
	go func() {
		errCh <- read(ctx)
	}()
	go func() {
		errCh <- writeLoop(ctx, conn, client, mapEvent, log)
	}()

	err := <-errCh
	cancel() // stop the other goroutine
	<-errCh
	return err
}

func writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, mapEvent func(*core.Event) (any, bool), log *zerolog.Logger) error {
	write := func(event *core.Event) error {
		out, ok := mapEvent(event)
		if !ok {
			return nil
		}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			log.Error().Err(err).Msg("write ws event")
			return err
		}
		return nil
	}

	for {
		select {
		case event := <-client.Events:
			if err := write(event); err != nil {
				return err
			}
		case <-client.Done():
			// Flush what was queued before the close, e.g. the final notice.
			for {
				select {
				case event := <-client.Events:
					if err := write(event); err != nil {
						return err
					}
				default:
					conn.Close(websocket.StatusNormalClosure, client.CloseReason())
					return errForceClosed
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func closeConn(conn *websocket.Conn, err error, log *zerolog.Logger) {
	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errForceClosed) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}
