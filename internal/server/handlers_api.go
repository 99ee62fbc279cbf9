package server

import (
	"log"
	"net/http"
)

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type joinRequest struct {
	UserID string `json:"user_id"`
}

type leaveRequest struct {
	UserID string `json:"user_id"`
}

type readyRequest struct {
	UserID string `json:"user_id"`
}

type roleRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type wordsRequest struct {
	UserID  string   `json:"user_id"`
	WordIDs []string `json:"word_ids"`
}

type resolveRequest struct {
	UserID   string `json:"user_id"`
	Accepted *bool  `json:"accepted"`
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	session, err := s.eng.CreateSession(r.Context(), req.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": session.ID,
		"join_code":  session.JoinCode,
	})
}

func (s *Server) handleSessionSubroutes(w http.ResponseWriter, r *http.Request) {
	sessionID, action, ok := parseSessionPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		switch action {
		case "":
			s.handleGetSession(w, r, sessionID)
		case "chat":
			s.handleListChat(w, r, sessionID)
		case "offer":
			s.handleOffer(w, r, sessionID)
		default:
			http.NotFound(w, r)
		}
	case http.MethodPost:
		switch action {
		case "join":
			s.handleJoinSession(w, r, sessionID)
		case "leave":
			s.handleLeaveSession(w, r, sessionID)
		case "ready":
			s.handleReady(w, r, sessionID)
		case "role":
			s.handleSelectRole(w, r, sessionID)
		case "words":
			s.handleSelectWords(w, r, sessionID)
		case "resolve":
			s.handleResolvePitch(w, r, sessionID)
		case "chat":
			s.handleSendChat(w, r, sessionID)
		default:
			http.NotFound(w, r)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, idOrCode string) {
	session, err := s.eng.ResolveSession(r.Context(), idOrCode)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	snap, err := s.eng.SnapshotFor(r.Context(), session.ID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotPayload(snap))
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request, idOrCode string) {
	var req joinRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	session, err := s.eng.JoinSession(r.Context(), idOrCode, req.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"join_code":  session.JoinCode,
		"status":     session.Status,
	})
}

func (s *Server) handleLeaveSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req leaveRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	session, err := s.eng.Leave(r.Context(), sessionID, req.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"status":     session.Status,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req readyRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	session, err := s.eng.MarkReady(r.Context(), sessionID, req.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  session.ID,
		"host_ready":  session.HostReady,
		"guest_ready": session.GuestReady,
	})
}

func (s *Server) handleSelectRole(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req roleRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" || req.RoleID == "" {
		writeError(w, http.StatusBadRequest, "user_id and role_id are required")
		return
	}
	round, err := s.eng.SelectRole(r.Context(), sessionID, req.UserID, req.RoleID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("role selected session_id=%s round_id=%s user_id=%s", sessionID, round.ID, req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id": round.ID,
	})
}

func (s *Server) handleSelectWords(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req wordsRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id and word_ids are required")
		return
	}
	round, err := s.eng.SelectWords(r.Context(), sessionID, req.UserID, req.WordIDs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("words selected session_id=%s round_id=%s user_id=%s", sessionID, round.ID, req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id":       round.ID,
		"words_selected": true,
	})
}

func (s *Server) handleResolvePitch(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req resolveRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" || req.Accepted == nil {
		writeError(w, http.StatusBadRequest, "user_id and accepted are required")
		return
	}
	round, session, err := s.eng.ResolvePitch(r.Context(), sessionID, req.UserID, *req.Accepted)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("pitch resolved session_id=%s round_id=%s accepted=%t", sessionID, round.ID, *req.Accepted)
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id":      round.ID,
		"accepted":      *req.Accepted,
		"current_round": session.CurrentRound,
	})
}

func (s *Server) handleSendChat(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req chatRequest
	if err := readJSON(r.Body, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id and content are required")
		return
	}
	message, err := s.eng.SendChat(r.Context(), sessionID, req.UserID, req.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message_id": message.ID,
	})
}

func (s *Server) handleListChat(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	snap, err := s.eng.SnapshotFor(r.Context(), sessionID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	messages := make([]map[string]any, 0, len(snap.Chat))
	for _, message := range snap.Chat {
		messages = append(messages, map[string]any{
			"id":         message.ID,
			"user_id":    message.UserID,
			"content":    message.Content,
			"created_at": message.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
	})
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	roles, words, err := s.eng.Offer(r.Context(), sessionID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if roles != nil {
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"words": words})
}
