package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/store"
	"github.com/soyeahso/wayfarer/internal/turn"
	"github.com/soyeahso/wayfarer/internal/version"
)

// readableConfigPrefixes lists config paths config.get may read. Everything
// else is denied.
var readableConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"logging",
	"memory",
	"agentCache",
	"truncation",
	"turn",
	"fastTier.driver",
	"fastTier.codec",
	"fastTier.ttlSeconds",
	"provider.kind",
	"provider.model",
}

func isReadableConfigPath(key string) bool {
	for _, prefix := range readableConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// maxChatBody bounds the SSE request body.
const maxChatBody = 64 << 10

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("chat.send", s.rpcChatSend)
	if s.sessions != nil {
		s.Handle("session.list", s.rpcSessionList)
		s.Handle("session.get", s.rpcSessionGet)
		s.Handle("session.history", s.rpcSessionHistory)
		s.Handle("session.rename", s.rpcSessionRename)
		s.Handle("session.delete", s.rpcSessionDelete)
	}
	if s.stats != nil {
		s.Handle("stats", func(rc *RequestContext) {
			rc.Respond(s.stats.Snapshot())
		})
	}
}

func (s *Server) rpcHealth(rc *RequestContext) {
	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Milliseconds()
	}
	rc.Respond(HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Clients:  s.clients.Count(),
		UptimeMs: uptime,
	})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isReadableConfigPath(p.Key) {
		rc.RespondError("forbidden", "access denied for config path: "+p.Key)
		return
	}
	val, ok := valueAt(s.settings, strings.Split(p.Key, "."))
	if !ok {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

func valueAt(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

type chatSendParams struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
	NoCache   bool   `json:"noCache,omitempty"`
}

// rpcChatSend runs a turn owned by the client, so a disconnect cancels it.
// With stream set, chat.delta events precede one chat.stop event; the
// response always carries the full reply.
func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.chat == nil {
		rc.RespondError("unavailable", "no chat backend configured")
		return
	}
	var p chatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	// Blank messages go through: the turn's input check answers them
	// with a rejection text like any other invalid input.
	req := turn.Request{
		SessionID: p.SessionID,
		UserID:    firstNonEmpty(p.UserID, rc.Client.Info.UserID, domain.DefaultUserID),
		Text:      p.Message,
		NoCache:   p.NoCache,
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	rc.Client.Go(func(ctx context.Context) {
		var reply strings.Builder
		var flusher *deltaFlusher
		if p.Stream {
			flusher = newDeltaFlusher(flusherConfig{}, func(chunk string) {
				s.sendEvent(rc, EventChatDelta, ChatDelta{
					RequestID: rc.Frame.ID,
					SessionID: req.SessionID,
					Content:   chunk,
				})
			})
		}
		for ev := range s.chat.Stream(ctx, req) {
			if ev.Kind != turn.KindText {
				continue
			}
			reply.WriteString(ev.Text)
			if flusher != nil {
				flusher.Write(ev.Text)
			}
		}
		if flusher != nil {
			flusher.Close()
		}
		if ctx.Err() != nil {
			return
		}
		if p.Stream {
			s.sendEvent(rc, EventChatStop, ChatStop{RequestID: rc.Frame.ID, SessionID: req.SessionID})
		}
		rc.Respond(ChatResult{SessionID: req.SessionID, Response: reply.String()})
	})
}

func (s *Server) sendEvent(rc *RequestContext, event string, payload any) {
	if err := rc.Client.SendEvent(event, payload, s.eventSeq.Add(1)); err != nil {
		s.log.Debug().Err(err).Str("event", event).Str("connId", rc.Client.ConnID).Msg("event not delivered")
	}
}

type sessionListParams struct {
	UserID   string `json:"userId,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

func (s *Server) rpcSessionList(rc *RequestContext) {
	var p sessionListParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	page, err := s.sessions.List(rc.Context(), firstNonEmpty(p.UserID, rc.Client.Info.UserID), p.Page, p.PageSize)
	if err != nil {
		rc.fail(err)
		return
	}
	rc.Respond(page)
}

type sessionParams struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title,omitempty"`
}

func (rc *RequestContext) sessionParams() (sessionParams, bool) {
	var p sessionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return p, false
	}
	if p.SessionID == "" {
		rc.RespondError("invalid_params", "sessionId is required")
		return p, false
	}
	return p, true
}

func (s *Server) rpcSessionGet(rc *RequestContext) {
	p, ok := rc.sessionParams()
	if !ok {
		return
	}
	sess, err := s.sessions.Get(rc.Context(), p.SessionID)
	if err != nil {
		rc.fail(err)
		return
	}
	rc.Respond(sess)
}

func (s *Server) rpcSessionHistory(rc *RequestContext) {
	p, ok := rc.sessionParams()
	if !ok {
		return
	}
	msgs, err := s.sessions.History(rc.Context(), p.SessionID)
	if err != nil {
		rc.fail(err)
		return
	}
	rc.Respond(map[string]any{"sessionId": p.SessionID, "messages": msgs})
}

func (s *Server) rpcSessionRename(rc *RequestContext) {
	p, ok := rc.sessionParams()
	if !ok {
		return
	}
	if strings.TrimSpace(p.Title) == "" {
		rc.RespondError("invalid_params", "title is required")
		return
	}
	if err := s.sessions.Rename(rc.Context(), p.SessionID, p.Title); err != nil {
		rc.fail(err)
		return
	}
	rc.Respond(map[string]any{"sessionId": p.SessionID, "title": strings.TrimSpace(p.Title)})
}

func (s *Server) rpcSessionDelete(rc *RequestContext) {
	p, ok := rc.sessionParams()
	if !ok {
		return
	}
	if err := s.sessions.Delete(rc.Context(), p.SessionID); err != nil {
		rc.fail(err)
		return
	}
	rc.Respond(map[string]any{"sessionId": p.SessionID, "deleted": true})
}

// chatStreamRequest is the body of POST /api/chat/stream.
type chatStreamRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	NoCache   bool   `json:"noCache,omitempty"`
}

type sseChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type sseChunk struct {
	Choices []sseChoice `json:"choices"`
}

// handleChatStream streams one turn as server-sent events. Each text event
// becomes a data line; a final data line carries finish_reason "stop".
// The session ID is echoed in the X-Session-ID header.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if res := AuthorizeHTTP(s.auth, r); !res.OK {
		writeJSONError(w, http.StatusUnauthorized, res.Reason)
		return
	}
	if s.chat == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no chat backend configured")
		return
	}

	var body chatStreamRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.SessionID == "" {
		body.SessionID = uuid.NewString()
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Session-ID", body.SessionID)
	w.WriteHeader(http.StatusOK)

	req := turn.Request{
		SessionID: body.SessionID,
		UserID:    firstNonEmpty(body.UserID, domain.DefaultUserID),
		Text:      body.Message,
		NoCache:   body.NoCache,
	}
	for ev := range s.chat.Stream(r.Context(), req) {
		var chunk sseChunk
		switch ev.Kind {
		case turn.KindText:
			chunk.Choices = []sseChoice{{Text: ev.Text}}
		case turn.KindStop:
			chunk.Choices = []sseChoice{{FinishReason: "stop"}}
		}
		if err := writeSSE(w, chunk); err != nil {
			s.log.Debug().Err(err).Str("sessionId", req.SessionID).Msg("sse write failed")
			continue
		}
		_ = rc.Flush()
	}
}

func writeSSE(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// fail maps a service error onto an RPC error response.
func (rc *RequestContext) fail(err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		rc.RespondError("not_found", err.Error())
	case errors.Is(err, context.Canceled):
		// client gone
	default:
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc failed")
		rc.RespondError("internal", err.Error())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
