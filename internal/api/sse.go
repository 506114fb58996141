package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"SolanaMCP-Agent/internal/agent"
	"SolanaMCP-Agent/internal/credentials"
	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/events"
	"SolanaMCP-Agent/internal/mcp"
	"SolanaMCP-Agent/internal/observability/metrics"
	"SolanaMCP-Agent/internal/session"
	"SolanaMCP-Agent/internal/transport"
	"SolanaMCP-Agent/internal/wallet"
	"SolanaMCP-Agent/pkg/logger"
)

// sessionNotFound 是未知会话时的响应体。
const sessionNotFound = "No transport found for sessionId"

// handleSSE 为一次连接建立会话，阻塞到客户端断开。
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// 凭证校验失败只影响本连接。
	bundle, err := credentials.Extract(r.Header)
	if err != nil {
		s.rejectSetup(w, err)
		return
	}
	signer, err := s.newSigner(bundle)
	if err != nil {
		s.rejectSetup(w, err)
		return
	}
	custodyWallet, err := wallet.NewCustodyWallet(bundle, signer)
	if err != nil {
		s.rejectSetup(w, err)
		return
	}

	t, err := transport.NewSSE(w, MessagesPath, transport.WithKeepAlive(s.keepAlive))
	if err != nil {
		s.rejectSetup(w, err)
		return
	}
	id := t.SessionID()
	log := logger.ForSession(s.logger, id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ag := agent.New(custodyWallet, s.chains.For(string(bundle.Network)), s.catalog,
		agent.WithSessionID(id),
		agent.WithNetwork(bundle.Network),
		agent.WithRecorder(s.history),
		agent.WithEvents(s.events),
		agent.WithAlerts(s.alerts),
		agent.WithPriceSource(s.prices),
		agent.WithSwapper(s.swapper),
		agent.WithAPIKeys(s.apiKeys),
		agent.WithActionTimeout(s.actionTimeout),
		agent.WithLogger(log),
	)
	server := mcp.NewServer(ag, mcp.WithServerInfo(s.name, s.version), mcp.WithLogger(log))
	server.Bind(ctx, t)

	sess := session.New(t)
	if err := s.sessions.Add(id, t); err != nil {
		sess.Close()
		s.rejectSetup(w, err)
		return
	}
	sess.OnClose(func() {
		s.sessions.Remove(id)
		metrics.SetActiveSessions(s.sessions.Len())
		s.publish(log, events.New(events.TypeSessionClosed, id, map[string]string{
			"wallet":   custodyWallet.PublicKey().String(),
			"duration": time.Since(sess.OpenedAt()).Round(time.Millisecond).String(),
		}))
		log.Info("session closed")
	})
	defer sess.Close()

	if err := t.Start(); err != nil {
		log.Error("start event stream", slog.Any("error", err))
		return
	}
	if err := sess.Activate(); err != nil {
		log.Error("activate session", slog.Any("error", err))
		return
	}
	metrics.SetActiveSessions(s.sessions.Len())
	s.publish(log, events.New(events.TypeSessionOpened, id, map[string]string{
		"wallet":  custodyWallet.PublicKey().String(),
		"network": string(bundle.Network),
	}))
	log.Info("session opened",
		slog.String("wallet", custodyWallet.PublicKey().String()),
		slog.String("network", string(bundle.Network)))

	t.Serve(ctx)
}

// handleMessages 把客户端消息投递给会话，应答在事件流中返回。
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, err := s.sessions.Lookup(r.URL.Query().Get("sessionId"))
	if err != nil {
		writeText(w, http.StatusBadRequest, sessionNotFound)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := t.Deliver(r.Context(), payload); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			writeText(w, http.StatusBadRequest, sessionNotFound)
			return
		}
		s.logger.Error("deliver message", slog.String("session_id", t.SessionID()), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeText(w, http.StatusAccepted, "Accepted")
}

// rejectSetup 把会话建立失败映射为 HTTP 响应，只有客户端错误回显原因。
func (s *Server) rejectSetup(w http.ResponseWriter, err error) {
	if xerrors.HTTPStatusOf(err) == http.StatusBadRequest {
		s.logger.Info("rejected connection", slog.String("reason", xerrors.PublicMessage(err)))
		writeError(w, http.StatusBadRequest, xerrors.PublicMessage(err))
		return
	}
	s.logger.Error("session setup failed", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) publish(log *slog.Logger, event events.Event) {
	if err := s.events.Publish(context.Background(), event); err != nil {
		log.Error("publish event", slog.String("type", string(event.Type)), slog.Any("error", err))
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
