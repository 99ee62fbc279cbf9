package server

import "github.com/aysenurcaglar/snake-oil-game/internal/engine"

// snapshotPayload flattens a participant snapshot into the wire shape.
// Round content is only present when the snapshot says it is revealed;
// pre-reveal the other side's progress shows up as booleans only.
func snapshotPayload(snap engine.Snapshot) map[string]any {
	if snap.Session == nil {
		return map[string]any{}
	}
	payload := map[string]any{
		"session_id":     snap.Session.ID,
		"join_code":      snap.Session.JoinCode,
		"host_id":        snap.Session.HostID,
		"guest_id":       snap.Session.GuestID,
		"status":         snap.Session.Status,
		"current_round":  snap.Session.CurrentRound,
		"host_ready":     snap.Session.HostReady,
		"guest_ready":    snap.Session.GuestReady,
		"both_ready":     snap.BothReady,
		"revealed":       snap.Revealed,
		"role_selected":  snap.RoleSelected,
		"words_selected": snap.WordsSelected,
		"is_customer":    snap.IsCustomer,
		"is_my_turn":     snap.IsMyTurn,
	}
	if snap.Round != nil {
		payload["round_id"] = snap.Round.ID
		if snap.Round.Resolved() {
			payload["accepted"] = *snap.Round.Accepted
		}
	}
	if snap.Revealed {
		payload["customer_role"] = snap.CustomerRoleName
		payload["product"] = snap.Product
		chat := make([]map[string]any, 0, len(snap.Chat))
		for _, message := range snap.Chat {
			chat = append(chat, map[string]any{
				"id":         message.ID,
				"user_id":    message.UserID,
				"content":    message.Content,
				"created_at": message.CreatedAt,
			})
		}
		payload["chat"] = chat
	}
	if len(snap.RoleOffer) > 0 {
		payload["role_offer"] = snap.RoleOffer
	}
	if len(snap.WordOffer) > 0 {
		payload["word_offer"] = snap.WordOffer
	}
	return payload
}
