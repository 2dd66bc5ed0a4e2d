// Package registry tracks which session is currently live for each teacher.
// It is the sole authority the orchestrator consults before mutating a
// session; the persisted is_active flag is only an eventually-consistent
// secondary used for historical lookups.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrTeacherBusy indicates the teacher already has an active session.
var ErrTeacherBusy = errors.New("teacher already has an active session")

// SessionRegistry maps a teacher to the id of their active session. Entries
// exist only while a session is live. Reclaim and Release exist so callers
// can repair an entry left behind by a failed Deactivate without clobbering
// a claim another node took over in the meantime.
type SessionRegistry interface {
	Activate(ctx context.Context, teacherID, sessionID string) error
	ActiveSession(ctx context.Context, teacherID string) (string, error)
	Deactivate(ctx context.Context, teacherID string) error
	Reclaim(ctx context.Context, teacherID, staleSessionID, sessionID string) error
	Release(ctx context.Context, teacherID, sessionID string) error
}

var reclaimScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisRegistry struct {
	client    *redis.Client
	keyPrefix string
	logger    zerolog.Logger
}

// NewRedisRegistry constructs a registry backed by Redis, shared by all API
// nodes so that at most one session per teacher can be live cluster-wide.
func NewRedisRegistry(client *redis.Client, logger zerolog.Logger) SessionRegistry {
	return &redisRegistry{
		client:    client,
		keyPrefix: "eyeai:registry:active",
		logger:    logger.With().Str("component", "session_registry").Logger(),
	}
}

func (r *redisRegistry) key(teacherID string) string {
	return fmt.Sprintf("%s:%s", r.keyPrefix, teacherID)
}

// Activate claims the teacher's slot atomically. SetNX guarantees that two
// concurrent starts cannot both win, even across nodes.
func (r *redisRegistry) Activate(ctx context.Context, teacherID, sessionID string) error {
	ok, err := r.client.SetNX(ctx, r.key(teacherID), sessionID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to register active session: %w", err)
	}
	if !ok {
		return ErrTeacherBusy
	}

	r.logger.Info().Str("teacher_id", teacherID).Str("session_id", sessionID).Msg("session registered")
	return nil
}

// ActiveSession returns the live session id for the teacher, or an empty
// string when no session is active.
func (r *redisRegistry) ActiveSession(ctx context.Context, teacherID string) (string, error) {
	value, err := r.client.Get(ctx, r.key(teacherID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up active session: %w", err)
	}
	return value, nil
}

func (r *redisRegistry) Deactivate(ctx context.Context, teacherID string) error {
	if err := r.client.Del(ctx, r.key(teacherID)).Err(); err != nil {
		return fmt.Errorf("failed to deregister session: %w", err)
	}

	r.logger.Info().Str("teacher_id", teacherID).Msg("session deregistered")
	return nil
}

// Reclaim swaps the teacher's claim from staleSessionID to sessionID in a
// single atomic step. The swap only happens while the entry still points at
// the stale id; if another node claimed the slot first, ErrTeacherBusy is
// returned and their claim stands.
func (r *redisRegistry) Reclaim(ctx context.Context, teacherID, staleSessionID, sessionID string) error {
	swapped, err := reclaimScript.Run(ctx, r.client, []string{r.key(teacherID)}, staleSessionID, sessionID).Int()
	if err != nil {
		return fmt.Errorf("failed to reclaim session slot: %w", err)
	}
	if swapped == 0 {
		return ErrTeacherBusy
	}

	r.logger.Warn().
		Str("teacher_id", teacherID).
		Str("stale_session_id", staleSessionID).
		Str("session_id", sessionID).
		Msg("stale registry entry reclaimed")
	return nil
}

// Release deletes the claim only while it still points at sessionID. A no-op
// when the entry is gone or was taken over by a newer session.
func (r *redisRegistry) Release(ctx context.Context, teacherID, sessionID string) error {
	deleted, err := releaseScript.Run(ctx, r.client, []string{r.key(teacherID)}, sessionID).Int()
	if err != nil {
		return fmt.Errorf("failed to release session slot: %w", err)
	}
	if deleted > 0 {
		r.logger.Info().Str("teacher_id", teacherID).Str("session_id", sessionID).Msg("stale registry entry released")
	}
	return nil
}
