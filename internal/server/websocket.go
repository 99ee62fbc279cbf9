package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aysenurcaglar/snake-oil-game/internal/engine"
)

// wsClient pairs one websocket connection with one session
// coordinator. Every reconciled change pushes a fresh snapshot;
// inbound frames carry commands. Closing the socket tears the
// coordinator down, which is what cancels the feed subscription.
type wsClient struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	coord *engine.Coordinator
}

type wsCommand struct {
	Action   string   `json:"action"`
	RoleID   string   `json:"role_id"`
	WordIDs  []string `json:"word_ids"`
	Accepted *bool    `json:"accepted"`
	Content  string   `json:"content"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseWebsocketPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	client := &wsClient{}
	coord, err := s.eng.Enter(r.Context(), sessionID, userID, client.push)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		coord.Close()
		return
	}
	client.mu.Lock()
	client.conn = conn
	client.coord = coord
	client.mu.Unlock()
	log.Printf("ws connected session_id=%s user_id=%s remote=%s", sessionID, userID, r.RemoteAddr)
	client.push()
	go client.readLoop(sessionID, userID)
}

func (c *wsClient) push() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.coord == nil {
		return
	}
	data, err := json.Marshal(snapshotPayload(c.coord.State()))
	if err != nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) send(payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) readLoop(sessionID, userID string) {
	defer func() {
		c.coord.Close()
		_ = c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("ws disconnected session_id=%s user_id=%s error=%v", sessionID, userID, err)
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.send(map[string]string{"error": "invalid command"})
			continue
		}
		c.dispatch(cmd)
	}
}

func (c *wsClient) dispatch(cmd wsCommand) {
	ctx := context.Background()
	var err error
	switch cmd.Action {
	case "ready":
		err = c.coord.MarkReady(ctx)
	case "role":
		err = c.coord.SelectRole(ctx, cmd.RoleID)
	case "words":
		err = c.coord.SelectWords(ctx, cmd.WordIDs)
	case "resolve":
		if cmd.Accepted == nil {
			err = engine.ErrInvalidSelection
		} else {
			err = c.coord.ResolvePitch(ctx, *cmd.Accepted)
		}
	case "chat":
		err = c.coord.SendChat(ctx, cmd.Content)
	case "leave":
		err = c.coord.Leave(ctx)
	default:
		c.send(map[string]string{"error": "unknown action"})
		return
	}
	if err != nil {
		c.send(map[string]string{"error": err.Error()})
	}
}
