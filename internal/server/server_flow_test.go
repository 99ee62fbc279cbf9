package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aysenurcaglar/snake-oil-game/internal/config"
)

// Walks one full round over the REST surface: join by code, the
// customer picks a persona, the seller builds the product, both mark
// ready, the customer judges, and the session advances with roles
// flipped.
func TestFullRoundOverREST(t *testing.T) {
	srv := New(nil, nil, config.Default())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	sessionID, joinCode := createSession(t, ts, "host-1")
	joinSession(t, ts, joinCode, "guest-1")

	// Customer offer: two personas.
	resp := doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID+"/offer?user_id=host-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("role offer: expected 200, got %d", resp.StatusCode)
	}
	roles := decodeBody(t, resp)["roles"].([]any)
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles on offer, got %d", len(roles))
	}
	roleID := roles[0].(map[string]any)["id"].(string)

	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/role", map[string]string{
		"user_id": "host-1",
		"role_id": roleID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("role pick: expected 200, got %d", resp.StatusCode)
	}

	// Seller offer: six words, pick two.
	resp = doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID+"/offer?user_id=guest-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("word offer: expected 200, got %d", resp.StatusCode)
	}
	words := decodeBody(t, resp)["words"].([]any)
	if len(words) != 6 {
		t.Fatalf("expected 6 words on offer, got %d", len(words))
	}
	wordIDs := []string{
		words[0].(map[string]any)["id"].(string),
		words[1].(map[string]any)["id"].(string),
	}

	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/words", map[string]any{
		"user_id":  "guest-1",
		"word_ids": wordIDs,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("word pick: expected 200, got %d", resp.StatusCode)
	}

	// A single word is rejected outright.
	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/words", map[string]any{
		"user_id":  "guest-1",
		"word_ids": wordIDs[:1],
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("single word: expected 400, got %d", resp.StatusCode)
	}

	// Chat: senders may write before the reveal, but nothing is
	// readable until both sides are ready.
	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/chat", map[string]string{
		"user_id": "guest-1",
		"content": "trust me",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("chat send: expected 201, got %d", resp.StatusCode)
	}
	resp = doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID+"/chat?user_id=host-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat list: expected 200, got %d", resp.StatusCode)
	}
	if messages := decodeBody(t, resp)["messages"].([]any); len(messages) != 0 {
		t.Fatalf("chat leaked before reveal: %v", messages)
	}

	snap := fetchSnapshot(t, ts, sessionID, "host-1")
	if snap["words_selected"] != true || snap["revealed"] == true {
		t.Fatalf("expected hidden progress booleans, got %v", snap)
	}
	if _, leaked := snap["product"]; leaked {
		t.Fatal("product leaked before reveal")
	}

	markReady(t, ts, sessionID, "host-1")
	markReady(t, ts, sessionID, "guest-1")

	snap = fetchSnapshot(t, ts, sessionID, "guest-1")
	if snap["revealed"] != true {
		t.Fatalf("expected reveal after both ready, got %v", snap)
	}
	if product := snap["product"].([]any); len(product) != 2 {
		t.Fatalf("expected 2 product words, got %v", product)
	}
	if snap["customer_role"] == "" {
		t.Fatal("expected the persona name after reveal")
	}
	resp = doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID+"/chat?user_id=host-1", nil)
	if messages := decodeBody(t, resp)["messages"].([]any); len(messages) != 1 {
		t.Fatalf("expected chat visible after reveal, got %v", messages)
	}

	accepted := true
	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/resolve", map[string]any{
		"user_id":  "host-1",
		"accepted": accepted,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["current_round"] != float64(2) {
		t.Fatalf("expected advance to round 2, got %v", body["current_round"])
	}

	// Round 2: the guest judges and the ready flags are cleared.
	snap = fetchSnapshot(t, ts, sessionID, "guest-1")
	if snap["is_customer"] != true {
		t.Fatal("expected the guest to judge round 2")
	}
	if snap["host_ready"] == true || snap["guest_ready"] == true {
		t.Fatalf("expected cleared ready flags, got %v", snap)
	}
	if snap["revealed"] == true {
		t.Fatal("round 2 must start unrevealed")
	}
}

func TestGuestLeaveReopensSeatOverREST(t *testing.T) {
	srv := New(nil, nil, config.Default())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	sessionID, _ := createSession(t, ts, "host-1")
	joinSession(t, ts, sessionID, "guest-1")

	resp := doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/leave", map[string]string{"user_id": "guest-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leave: expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "waiting" {
		t.Fatalf("expected waiting after guest leave, got %v", body["status"])
	}

	joinSession(t, ts, sessionID, "guest-2")

	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/leave", map[string]string{"user_id": "host-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("host leave: expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "completed" {
		t.Fatalf("expected completed after host leave, got %v", body["status"])
	}

	// Terminal: chat and joins are refused.
	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/chat", map[string]string{
		"user_id": "host-1",
		"content": "anyone there?",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("chat on completed: expected 409, got %d", resp.StatusCode)
	}
	resp = doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/join", map[string]string{"user_id": "guest-3"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("join on completed: expected 409, got %d", resp.StatusCode)
	}
}
