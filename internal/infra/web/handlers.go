package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/usecase"
)

// statusForError maps domain sentinels onto HTTP statuses. Anything
// unmapped is a server fault.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, domain.ErrContentUnavailable):
		return http.StatusGone
	case errors.Is(err, domain.ErrTooManyActive), errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler for submitting a story generation job.
func storySubmitHandler(dir SessionDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var p model.StoryParams
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		eng, err := dir.Engine(ctx, sessionUser(ctx))
		if err != nil {
			writeError(w, err)
			return
		}
		entry, err := eng.SubmitStory(ctx, p)
		if err != nil {
			writeError(w, err)
			return
		}

		// The job is queued, not done; the stream carries the rest.
		writeJSON(w, http.StatusAccepted, entry)
	}
}

// Handler for submitting a narration synthesis task.
func narrationSubmitHandler(dir SessionDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var p model.NarrationParams
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		eng, err := dir.Engine(ctx, sessionUser(ctx))
		if err != nil {
			writeError(w, err)
			return
		}
		entry, err := eng.SubmitNarration(ctx, p)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, entry)
	}
}

// snapshotHandler serves the current in-flight view.
func snapshotHandler(dir SessionDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		eng, err := dir.Engine(ctx, sessionUser(ctx))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, eng.Snapshot())
	}
}

// historyHandler runs a reconciliation pass and serves the merged feed.
// It accepts an optional 'kind' query parameter to filter the view.
func historyHandler(dir SessionDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var kind model.ContentKind
		switch q := r.URL.Query().Get("kind"); q {
		case "":
		case string(model.ContentText), string(model.ContentAudio):
			kind = model.ContentKind(q)
		default:
			http.Error(w, "Unknown kind", http.StatusBadRequest)
			return
		}

		eng, err := dir.Engine(ctx, sessionUser(ctx))
		if err != nil {
			writeError(w, err)
			return
		}
		items, err := eng.History(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		if kind != "" {
			items = usecase.FilterKind(items, kind)
		}

		response := struct {
			Data []model.HistoryItem `json:"data"`
		}{
			Data: items,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// Handler for listing the narration voice catalog.
func voicesHandler(catalogUC usecase.CatalogUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		voices, err := catalogUC.ListVoices(ctx)
		if err != nil {
			writeError(w, err)
			return
		}

		response := struct {
			Data []model.Voice `json:"data"`
		}{
			Data: voices,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// accountHandler serves the freshly re-derived balance and grants.
func accountHandler(accountUC usecase.AccountUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		balance, grants, err := accountUC.Overview(ctx, sessionUser(ctx))
		if err != nil {
			writeError(w, err)
			return
		}

		response := struct {
			Balance model.Balance `json:"balance"`
			Grants  []model.Grant `json:"grants"`
		}{
			Balance: balance,
			Grants:  grants,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// mediaHandler serves spooled narration audio while the durable upload is
// still in flight.
func mediaHandler(delivery usecase.ResultDelivery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		path, err := delivery.SpoolPath(name)
		if err != nil {
			writeError(w, err)
			return
		}
		http.ServeFile(w, r, path)
	}
}

type sessionOpenRequest struct {
	UserID         string `json:"user_id"`
	Key            string `json:"key"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

// handleSessionOpen mints a session token and spins up (or rehydrates) the
// user's engine. The issue key gates who may mint sessions.
func (s *Server) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req sessionOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if s.issueKey == "" || req.Key != s.issueKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	eng, err := s.sessions.Engine(ctx, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.TelegramChatID != 0 && s.notifier != nil {
		s.notifier.Register(req.UserID, req.TelegramChatID)
	}

	token, err := s.auth.Mint(w, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := struct {
		Token    string                `json:"token"`
		Snapshot model.SessionSnapshot `json:"snapshot"`
	}{
		Token:    token,
		Snapshot: eng.Snapshot(),
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSessionClose tears the engine down and clears the cookie. Pending
// entries survive in the session store for the next rehydration.
func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	userID := sessionUser(r.Context())

	s.sessions.CloseSession(userID)
	if s.notifier != nil {
		s.notifier.Unregister(userID)
	}
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents is the state stream. It replays the in-flight snapshot on
// attach, then relays hub frames until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := sessionUser(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	eng, err := s.sessions.Engine(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Attach before reading the snapshot: anything that resolves in
	// between arrives as a duplicate frame, not a lost one.
	frames, detach := s.hub.Attach(userID)
	defer detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeFrame(w, flusher, "active", mustJSON(eng.Snapshot()))

	// History and account state arrive as hub frames once derived.
	go func() {
		if _, err := eng.History(ctx); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("history replay failed")
		}
		eng.RefreshAccount(ctx)
	}()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-frames:
			if !open {
				return
			}
			writeFrame(w, flusher, msg.event, msg.data)
		}
	}
}

func writeFrame(w io.Writer, flusher http.Flusher, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
