package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aysenurcaglar/snake-oil-game/internal/engine"
	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
)

// SessionStore implements engine.Store and engine.Oracle over Postgres.
// Every mutation is an equality-filtered UPDATE checked through
// RowsAffected; a filter miss is classified into the precondition error
// the engine expects, by re-reading the row. Successful mutations
// publish the full new row on the change feed.
type SessionStore struct {
	conn  *gorm.DB
	feed  feed.Feed
	clock clockwork.Clock
}

func NewSessionStore(conn *gorm.DB, bus feed.Feed, clock clockwork.Clock) *SessionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionStore{conn: conn, feed: bus, clock: clock}
}

func (s *SessionStore) publish(sessionID, table, op string, row any) {
	if s.feed == nil {
		return
	}
	data, err := json.Marshal(row)
	if err != nil {
		log.Printf("feed publish marshal failed session_id=%s table=%s error=%v", sessionID, table, err)
		return
	}
	if err := s.feed.Publish(feed.Event{SessionID: sessionID, Table: table, Op: op, New: data}); err != nil {
		log.Printf("feed publish failed session_id=%s table=%s error=%v", sessionID, table, err)
	}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", engine.ErrStoreWrite, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func sessionRecord(session *engine.Session) GameSession {
	return GameSession{
		ID:           session.ID,
		JoinCode:     session.JoinCode,
		HostID:       session.HostID,
		GuestID:      session.GuestID,
		Status:       session.Status,
		CurrentRound: session.CurrentRound,
		HostReady:    session.HostReady,
		GuestReady:   session.GuestReady,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
}

func sessionModel(record *GameSession) *engine.Session {
	return &engine.Session{
		ID:           record.ID,
		JoinCode:     record.JoinCode,
		HostID:       record.HostID,
		GuestID:      record.GuestID,
		Status:       record.Status,
		CurrentRound: record.CurrentRound,
		HostReady:    record.HostReady,
		GuestReady:   record.GuestReady,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func roundModel(record *Round) *engine.Round {
	return &engine.Round{
		ID:             record.ID,
		SessionID:      record.SessionID,
		CustomerID:     record.CustomerID,
		SellerID:       record.SellerID,
		SelectedRoleID: record.SelectedRoleID,
		Word1ID:        record.Word1ID,
		Word2ID:        record.Word2ID,
		Accepted:       record.Accepted,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
}

func (s *SessionStore) fetchSession(ctx context.Context, id string) (*engine.Session, error) {
	var record GameSession
	if err := s.conn.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrSessionNotFound
		}
		return nil, storeErr(err)
	}
	return sessionModel(&record), nil
}

func (s *SessionStore) fetchRound(ctx context.Context, id string) (*engine.Round, error) {
	var record Round
	if err := s.conn.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrRoundNotReady
		}
		return nil, storeErr(err)
	}
	return roundModel(&record), nil
}

func (s *SessionStore) CreateSession(ctx context.Context, session *engine.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := s.clock.Now().UTC()
	session.Status = engine.StatusWaiting
	session.CurrentRound = 1
	session.CreatedAt = now
	session.UpdatedAt = now
	record := sessionRecord(session)
	if err := s.conn.WithContext(ctx).Create(&record).Error; err != nil {
		return storeErr(err)
	}
	s.publish(session.ID, feed.TableSessions, feed.OpInsert, session)
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*engine.Session, error) {
	return s.fetchSession(ctx, id)
}

func (s *SessionStore) FindSessionByJoinCode(ctx context.Context, code string) (*engine.Session, error) {
	var record GameSession
	if err := s.conn.WithContext(ctx).First(&record, "join_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrSessionNotFound
		}
		return nil, storeErr(err)
	}
	return sessionModel(&record), nil
}

func (s *SessionStore) ClaimGuestSeat(ctx context.Context, sessionID, guestID string) (*engine.Session, error) {
	result := s.conn.WithContext(ctx).Model(&GameSession{}).
		Where("id = ? AND status = ? AND guest_id IS NULL", sessionID, engine.StatusWaiting).
		Updates(map[string]any{
			"guest_id":   guestID,
			"status":     engine.StatusInProgress,
			"updated_at": s.clock.Now().UTC(),
		})
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.fetchSession(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, engine.ErrSessionUnavailable
	}
	session, err := s.fetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.publish(sessionID, feed.TableSessions, feed.OpUpdate, session)
	return session, nil
}

func (s *SessionStore) ReleaseGuestSeat(ctx context.Context, sessionID, guestID string) (*engine.Session, error) {
	result := s.conn.WithContext(ctx).Model(&GameSession{}).
		Where("id = ? AND guest_id = ? AND status <> ?", sessionID, guestID, engine.StatusCompleted).
		Updates(map[string]any{
			"guest_id":    nil,
			"guest_ready": false,
			"status":      engine.StatusWaiting,
			"updated_at":  s.clock.Now().UTC(),
		})
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		session, err := s.fetchSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status == engine.StatusCompleted {
			return nil, engine.ErrSessionUnavailable
		}
		return nil, engine.ErrNotAParticipant
	}
	session, err := s.fetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.publish(sessionID, feed.TableSessions, feed.OpUpdate, session)
	return session, nil
}

func (s *SessionStore) CompleteSession(ctx context.Context, sessionID string) (*engine.Session, error) {
	result := s.conn.WithContext(ctx).Model(&GameSession{}).
		Where("id = ? AND status <> ?", sessionID, engine.StatusCompleted).
		Updates(map[string]any{
			"status":     engine.StatusCompleted,
			"updated_at": s.clock.Now().UTC(),
		})
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	session, err := s.fetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected > 0 {
		s.publish(sessionID, feed.TableSessions, feed.OpUpdate, session)
	}
	return session, nil
}

func (s *SessionStore) SetReadyFlag(ctx context.Context, sessionID string, host bool) (*engine.Session, error) {
	column := "guest_ready"
	if host {
		column = "host_ready"
	}
	result := s.conn.WithContext(ctx).Model(&GameSession{}).
		Where("id = ? AND status = ? AND "+column+" = false", sessionID, engine.StatusInProgress).
		Updates(map[string]any{
			column:       true,
			"updated_at": s.clock.Now().UTC(),
		})
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	session, err := s.fetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		if session.Status != engine.StatusInProgress {
			return nil, engine.ErrRoundNotReady
		}
		// Already ready: a repeated mark is a no-op.
		return session, nil
	}
	s.publish(sessionID, feed.TableSessions, feed.OpUpdate, session)
	return session, nil
}

func (s *SessionStore) AdvanceRound(ctx context.Context, sessionID string, fromRound int) (*engine.Session, error) {
	result := s.conn.WithContext(ctx).Model(&GameSession{}).
		Where("id = ? AND status = ? AND current_round = ?", sessionID, engine.StatusInProgress, fromRound).
		Updates(map[string]any{
			"current_round": fromRound + 1,
			"host_ready":    false,
			"guest_ready":   false,
			"updated_at":    s.clock.Now().UTC(),
		})
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.fetchSession(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, engine.ErrSessionUnavailable
	}
	session, err := s.fetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.publish(sessionID, feed.TableSessions, feed.OpUpdate, session)
	return session, nil
}

func (s *SessionStore) InsertRound(ctx context.Context, round *engine.Round) error {
	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	now := s.clock.Now().UTC()
	round.CreatedAt = now
	round.UpdatedAt = now
	record := Round{
		ID:             round.ID,
		SessionID:      round.SessionID,
		CustomerID:     round.CustomerID,
		SellerID:       round.SellerID,
		SelectedRoleID: round.SelectedRoleID,
		CreatedAt:      round.CreatedAt,
		UpdatedAt:      round.UpdatedAt,
	}
	if err := s.conn.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race on the open-round partial index.
			return engine.ErrInvalidTurn
		}
		if isForeignKeyViolation(err) {
			return engine.ErrSessionNotFound
		}
		return storeErr(err)
	}
	s.publish(round.SessionID, feed.TableRounds, feed.OpInsert, round)
	return nil
}

func (s *SessionStore) LatestRound(ctx context.Context, sessionID string) (*engine.Round, error) {
	var record Round
	err := s.conn.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr(err)
	}
	return roundModel(&record), nil
}

func (s *SessionStore) SetRoundWords(ctx context.Context, roundID, word1ID, word2ID string) (*engine.Round, error) {
	result := s.conn.WithContext(ctx).Model(&Round{}).
		Where("id = ? AND selected_role_id IS NOT NULL AND word1_id IS NULL AND accepted IS NULL", roundID).
		Updates(map[string]any{
			"word1_id":   word1ID,
			"word2_id":   word2ID,
			"updated_at": s.clock.Now().UTC(),
		})
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		round, err := s.fetchRound(ctx, roundID)
		if err != nil {
			return nil, err
		}
		if round.Resolved() {
			return nil, engine.ErrAlreadyResolved
		}
		return nil, engine.ErrRoundNotReady
	}
	round, err := s.fetchRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	s.publish(round.SessionID, feed.TableRounds, feed.OpUpdate, round)
	return round, nil
}

func (s *SessionStore) ResolveRound(ctx context.Context, roundID string, accepted bool) (*engine.Round, error) {
	result := s.conn.WithContext(ctx).Model(&Round{}).
		Where("id = ? AND word1_id IS NOT NULL AND accepted IS NULL", roundID).
		Updates(map[string]any{
			"accepted":   accepted,
			"updated_at": s.clock.Now().UTC(),
		})
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		round, err := s.fetchRound(ctx, roundID)
		if err != nil {
			return nil, err
		}
		if round.Resolved() {
			return nil, engine.ErrAlreadyResolved
		}
		return nil, engine.ErrRoundNotReady
	}
	round, err := s.fetchRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	s.publish(round.SessionID, feed.TableRounds, feed.OpUpdate, round)
	return round, nil
}

func (s *SessionStore) AppendMessage(ctx context.Context, message *engine.ChatMessage) error {
	session, err := s.fetchSession(ctx, message.SessionID)
	if err != nil {
		return err
	}
	if session.Status == engine.StatusCompleted {
		return engine.ErrSessionUnavailable
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.CreatedAt = s.clock.Now().UTC()
	record := GameMessage{
		ID:        message.ID,
		SessionID: message.SessionID,
		UserID:    message.UserID,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
	}
	if err := s.conn.WithContext(ctx).Create(&record).Error; err != nil {
		if isForeignKeyViolation(err) {
			return engine.ErrSessionNotFound
		}
		return storeErr(err)
	}
	s.publish(message.SessionID, feed.TableMessages, feed.OpInsert, message)
	return nil
}

func (s *SessionStore) ListMessages(ctx context.Context, sessionID string) ([]engine.ChatMessage, error) {
	var records []GameMessage
	err := s.conn.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, storeErr(err)
	}
	messages := make([]engine.ChatMessage, 0, len(records))
	for _, record := range records {
		messages = append(messages, engine.ChatMessage{
			ID:        record.ID,
			SessionID: record.SessionID,
			UserID:    record.UserID,
			Content:   record.Content,
			CreatedAt: record.CreatedAt,
		})
	}
	return messages, nil
}

func (s *SessionStore) AppendEvent(ctx context.Context, sessionID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return storeErr(err)
	}
	record := GameEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Payload:   datatypes.JSON(data),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.conn.WithContext(ctx).Create(&record).Error; err != nil {
		if isForeignKeyViolation(err) {
			return engine.ErrSessionNotFound
		}
		return storeErr(err)
	}
	return nil
}

func (s *SessionStore) ListEvents(ctx context.Context, sessionID string) ([]engine.EventRecord, error) {
	var records []GameEvent
	err := s.conn.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, storeErr(err)
	}
	events := make([]engine.EventRecord, 0, len(records))
	for _, record := range records {
		var payload map[string]any
		if len(record.Payload) > 0 {
			if err := json.Unmarshal(record.Payload, &payload); err != nil {
				log.Printf("event payload unreadable event_id=%s error=%v", record.ID, err)
			}
		}
		events = append(events, engine.EventRecord{
			ID:        record.ID,
			SessionID: record.SessionID,
			Type:      record.Type,
			Payload:   payload,
			CreatedAt: record.CreatedAt,
		})
	}
	return events, nil
}

func (s *SessionStore) GetRole(ctx context.Context, id string) (*engine.Role, error) {
	var record Role
	if err := s.conn.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrInvalidSelection
		}
		return nil, storeErr(err)
	}
	return &engine.Role{ID: record.ID, Name: record.Name}, nil
}

func (s *SessionStore) GetWords(ctx context.Context, ids []string) ([]engine.Word, error) {
	var records []Word
	if err := s.conn.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, storeErr(err)
	}
	if len(records) != len(ids) {
		return nil, engine.ErrInvalidSelection
	}
	words := make([]engine.Word, 0, len(records))
	for _, record := range records {
		words = append(words, engine.Word{ID: record.ID, Word: record.Word})
	}
	return words, nil
}

func (s *SessionStore) RandomRoles(ctx context.Context, n int) ([]engine.Role, error) {
	var records []Role
	if err := s.conn.WithContext(ctx).Order("random()").Limit(n).Find(&records).Error; err != nil {
		return nil, storeErr(err)
	}
	if len(records) < n {
		return nil, fmt.Errorf("role catalog has %d entries, need %d", len(records), n)
	}
	roles := make([]engine.Role, 0, len(records))
	for _, record := range records {
		roles = append(roles, engine.Role{ID: record.ID, Name: record.Name})
	}
	return roles, nil
}

func (s *SessionStore) RandomWords(ctx context.Context, n int) ([]engine.Word, error) {
	var records []Word
	if err := s.conn.WithContext(ctx).Order("random()").Limit(n).Find(&records).Error; err != nil {
		return nil, storeErr(err)
	}
	if len(records) < n {
		return nil, fmt.Errorf("word catalog has %d entries, need %d", len(records), n)
	}
	words := make([]engine.Word, 0, len(records))
	for _, record := range records {
		words = append(words, engine.Word{ID: record.ID, Word: record.Word})
	}
	return words, nil
}

// SeedCatalogs inserts any missing default roles and words. Existing
// entries are left untouched.
func (s *SessionStore) SeedCatalogs(ctx context.Context) (int, error) {
	inserted := 0
	now := s.clock.Now().UTC()
	for _, name := range engine.DefaultRoleNames() {
		entry := Role{Name: name}
		if err := s.conn.WithContext(ctx).
			Attrs(Role{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}).
			FirstOrCreate(&entry, Role{Name: name}).Error; err != nil {
			return inserted, storeErr(err)
		}
		inserted++
	}
	for _, text := range engine.DefaultWordList() {
		entry := Word{Word: text}
		if err := s.conn.WithContext(ctx).
			Attrs(Word{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}).
			FirstOrCreate(&entry, Word{Word: text}).Error; err != nil {
			return inserted, storeErr(err)
		}
		inserted++
	}
	return inserted, nil
}
