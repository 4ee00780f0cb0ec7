package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"recipechat/internal/domain"
	"recipechat/internal/session"
)

type handlers struct {
	deps RouterDependencies
}

type sendMessageRequest struct {
	Content string `json:"content"`
	UseRAG  *bool  `json:"use_rag,omitempty"`
	Stream  *bool  `json:"stream,omitempty"`
}

type messageReply struct {
	Content    string `json:"content"`
	Incomplete bool   `json:"incomplete"`
	Notice     string `json:"notice,omitempty"`
	Error      string `json:"error,omitempty"`
}

type fragmentEvent struct {
	Content string `json:"content"`
}

type doneEvent struct {
	Done       bool   `json:"done"`
	Incomplete bool   `json:"incomplete"`
	Notice     string `json:"notice,omitempty"`
	Error      string `json:"error,omitempty"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

// HandleCreateSession opens a new chat session.
func (h *handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Sessions.Create()
	if err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]string{"id": s.ID()})
}

// HandleDeleteSession drops a session.
func (h *handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Sessions.Delete(chi.URLParam(r, "sessionID")) {
		RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListMessages returns the visible transcript.
func (h *handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"messages": s.Transcript()})
}

// HandleResetSession clears the conversation.
func (h *handlers) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSendMessage runs one chat turn. The reply is streamed as server-sent
// events unless the request sets "stream": false.
func (h *handlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	useRAG := h.deps.DefaultRAG
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	turn, err := h.deps.Chat.Submit(r.Context(), s, req.Content, useRAG)
	switch {
	case domain.IsPrecondition(err):
		RespondWithWarning(w, err.Error())
		return
	case errors.Is(err, session.ErrBusy):
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer turn.Close()

	if req.Stream != nil && !*req.Stream {
		text, err := turn.Wait()
		reply := messageReply{Content: text, Incomplete: turn.Incomplete(), Notice: turn.Notice()}
		if err != nil {
			reply.Error = err.Error()
			RespondWithJSON(w, http.StatusBadGateway, reply)
			return
		}
		RespondWithJSON(w, http.StatusOK, reply)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		RespondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	log := h.deps.Logger.With().Str("session", s.ID()).Logger()
	for {
		f, err := turn.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = sse.send(doneEvent{Done: true, Incomplete: turn.Incomplete(), Notice: turn.Notice(), Error: err.Error()})
			return
		}
		if err := sse.send(fragmentEvent{Content: f.Text}); err != nil {
			log.Warn().Err(err).Msg("client went away")
			return
		}
	}
	_ = sse.send(doneEvent{Done: true, Notice: turn.Notice()})
}

// HandleGenerateImage generates one dish image.
func (h *handlers) HandleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	img, err := h.deps.Images.Generate(r.Context(), req.Prompt, req.Size)
	switch {
	case domain.IsPrecondition(err):
		RespondWithWarning(w, err.Error())
	case err != nil:
		RespondWithError(w, http.StatusBadGateway, err.Error())
	default:
		RespondWithJSON(w, http.StatusOK, img)
	}
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.deps.Sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		RespondWithError(w, http.StatusNotFound, "session not found")
	}
	return s, ok
}
