package store

import (
	"context"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// CreateSession inserts a new session row in REQUESTED status. Called from
// inside the start_session WithTx alongside ClaimMachineStatus, so the two
// writes commit or roll back together (spec.md §4.5 step 2).
func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	sess.CreatedAt, sess.UpdatedAt = timestamps()
	if err := s.conn(ctx).Create(sess).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.create_session", err, "create session")
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	if err := s.conn(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "session", id)
	}
	return &sess, nil
}

// GetActiveSessionForMachine returns the non-terminal session for a machine,
// if any, used to reject concurrent starts before even attempting the CAS
// (spec.md §4.5 step 1 precondition check).
func (s *Store) GetActiveSessionForMachine(ctx context.Context, machineID string) (*types.Session, error) {
	var sess types.Session
	terminal := []types.SessionStatus{types.SessionStatusStopped, types.SessionStatusFailed, types.SessionStatusRejected}
	err := s.conn(ctx).Where("machine_id = ? AND status NOT IN ?", machineID, terminal).
		Order("created_at desc").First(&sess).Error
	if err != nil {
		return nil, notFoundOr(err, "session", machineID)
	}
	return &sess, nil
}

// ListActiveSessions returns every non-terminal session, the reconciliation
// sweep's starting set (spec.md §4.5 "Recovery at startup").
func (s *Store) ListActiveSessions(ctx context.Context) ([]types.Session, error) {
	var sessions []types.Session
	terminal := []types.SessionStatus{types.SessionStatusStopped, types.SessionStatusFailed, types.SessionStatusRejected}
	if err := s.conn(ctx).Where("status NOT IN ?", terminal).Find(&sessions).Error; err != nil {
		return nil, ggerr.Wrap(ggerr.KindTransient, "store.list_sessions", err, "list active sessions")
	}
	return sessions, nil
}

// UpdateSession persists the full row.
func (s *Store) UpdateSession(ctx context.Context, sess *types.Session) error {
	_, sess.UpdatedAt = timestamps()
	if err := s.conn(ctx).Save(sess).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.update_session", err, "update session")
	}
	return nil
}

// ClaimSessionStatus performs claim_status on a session row. stop_session
// uses this for its ACTIVE -> STOPPING transition (spec.md §4.5 step 1 of
// stop); a failing CAS against an already-terminal status is treated by the
// caller as idempotent success rather than a conflict.
func (s *Store) ClaimSessionStatus(ctx context.Context, id string, from, to types.SessionStatus) (bool, error) {
	return ClaimStatus[types.Session](ctx, s, id, from, to)
}
