package service

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/eyeai-api/internal/dto"
	"github.com/noah-isme/eyeai-api/internal/models"
	"github.com/noah-isme/eyeai-api/internal/registry"
	"github.com/noah-isme/eyeai-api/internal/repository"
)

type recordedEvent struct {
	TeacherID string
	Event     string
	Payload   interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Publish(_ context.Context, teacherID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{TeacherID: teacherID, Event: event, Payload: payload})
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, event := range n.events {
		out = append(out, event.Event)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sessionTestEnv struct {
	svc      SessionService
	repo     repository.SessionRepository
	reg      registry.SessionRegistry
	notifier *recordingNotifier
	clock    *fakeClock
	db       *gorm.DB
}

func newSessionTestEnv(t *testing.T, options SessionOptions) *sessionTestEnv {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Session{}, &models.FileUpload{}))

	repo := repository.NewSessionRepository(db)
	reg := registry.NewRedisRegistry(redisClient, zerolog.Nop())
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewSessionService(repo, reg, notifier, redisClient, validate, zerolog.Nop(), options)
	svc.(*sessionService).now = clock.Now

	return &sessionTestEnv{svc: svc, repo: repo, reg: reg, notifier: notifier, clock: clock, db: db}
}

func TestSessionLifecycle(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-lifecycle"

	started, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)
	require.NotEmpty(t, started.SessionID)

	joined, err := env.svc.JoinStudent(ctx, dto.JoinSessionRequest{
		TeacherID:   teacherID,
		StudentID:   "alice",
		StudentName: "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, 1, joined.StudentCount)

	_, err = env.svc.JoinStudent(ctx, dto.JoinSessionRequest{
		TeacherID:   teacherID,
		StudentID:   "bob",
		StudentName: "Bob",
	})
	require.NoError(t, err)

	// Alice looks at the screen for 10s, then away for 5s.
	first, err := env.svc.RecordAttention(ctx, dto.AttentionRequest{
		TeacherID: teacherID,
		StudentID: "alice",
		Direction: "center",
	})
	require.NoError(t, err)
	require.True(t, first.IsAttentive)

	env.clock.Advance(10 * time.Second)
	second, err := env.svc.RecordAttention(ctx, dto.AttentionRequest{
		TeacherID: teacherID,
		StudentID: "alice",
		Direction: "left",
	})
	require.NoError(t, err)
	require.False(t, second.IsAttentive)
	require.Equal(t, int64(10_000), second.TotalAttentiveMs)
	require.Equal(t, int64(10_000), second.TotalSessionMs)
	require.InDelta(t, 100.0, second.AttentionPercentage, 0.001)

	env.clock.Advance(5 * time.Second)

	camera, err := env.svc.UpdateCameraStatus(ctx, dto.CameraStatusRequest{
		TeacherID: teacherID,
		StudentID: "alice",
		Status:    "active",
	})
	require.NoError(t, err)
	require.Equal(t, "active", camera.CameraStatus)

	count, err := env.svc.ActiveStudentCount(ctx, teacherID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	data, err := env.svc.SessionData(ctx, teacherID)
	require.NoError(t, err)
	require.Equal(t, started.SessionID, data.SessionID)
	require.Equal(t, 2, data.TotalStudents)
	require.NotEmpty(t, data.GraphMetrics)

	summary, err := env.svc.EndSession(ctx, dto.EndSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)
	require.Equal(t, started.SessionID, summary.SessionID)
	require.Equal(t, 2, summary.TotalStudents)
	require.Len(t, summary.Leaderboard, 2)

	// Alice was attentive 10 of 15 observed seconds; Bob never observed.
	require.Equal(t, "alice", summary.Leaderboard[0].StudentID)
	require.Equal(t, 1, summary.Leaderboard[0].Rank)
	require.Equal(t, int64(10_000), summary.Leaderboard[0].TotalAttentiveMs)
	require.Equal(t, int64(15_000), summary.Leaderboard[0].TotalSessionMs)
	require.InDelta(t, 66.66, summary.Leaderboard[0].AttentionPercentage, 0.1)

	events := env.notifier.names()
	require.Equal(t, EventSessionStart, events[0])
	require.Equal(t, EventSessionEnd, events[len(events)-1])
	require.Contains(t, events, EventStudentJoined)
	require.Contains(t, events, EventAttentionMetrics)
	require.Contains(t, events, EventGraphMetrics)

	// The slot is free again once the session ended.
	_, err = env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)
}

func TestStartSessionWhileAnotherIsActive(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: "teacher-busy"})
	require.NoError(t, err)

	_, err = env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: "teacher-busy"})
	require.ErrorIs(t, err, registry.ErrTeacherBusy)
}

func TestStartSessionReclaimsStaleRegistryEntry(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-stale-start"

	// A claim pointing at a session that was never persisted, the state a
	// failed registry rollback leaves behind.
	require.NoError(t, env.reg.Activate(ctx, teacherID, "ghost-session"))

	started, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	mapped, err := env.reg.ActiveSession(ctx, teacherID)
	require.NoError(t, err)
	require.Equal(t, started.SessionID, mapped)

	// The reclaimed session is fully usable.
	joined, err := env.svc.JoinStudent(ctx, dto.JoinSessionRequest{
		TeacherID:   teacherID,
		StudentID:   "alice",
		StudentName: "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, 1, joined.StudentCount)
}

func TestStartSessionReclaimsEndedSessionClaim(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-stale-ended"

	started, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.EndSession(ctx, dto.EndSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	// Re-seed the claim with the ended session id, as if Deactivate had
	// failed after the row was finalized.
	require.NoError(t, env.reg.Activate(ctx, teacherID, started.SessionID))

	next, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)
	require.NotEqual(t, started.SessionID, next.SessionID)
}

func TestStartSessionDoesNotStealLiveClaim(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-live-claim"

	started, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.ErrorIs(t, err, registry.ErrTeacherBusy)

	mapped, err := env.reg.ActiveSession(ctx, teacherID)
	require.NoError(t, err)
	require.Equal(t, started.SessionID, mapped)
}

func TestStaleRegistryEntryClearedOnAccess(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-stale-read"

	// Mutation path drops the dead claim.
	require.NoError(t, env.reg.Activate(ctx, teacherID, "ghost-session"))

	_, err := env.svc.EndSession(ctx, dto.EndSessionRequest{TeacherID: teacherID})
	require.ErrorIs(t, err, ErrNoActiveSession)

	mapped, err := env.reg.ActiveSession(ctx, teacherID)
	require.NoError(t, err)
	require.Empty(t, mapped)

	// Read path drops it too.
	require.NoError(t, env.reg.Activate(ctx, teacherID, "ghost-session"))

	_, err = env.svc.SessionData(ctx, teacherID)
	require.ErrorIs(t, err, ErrNoActiveSession)

	mapped, err = env.reg.ActiveSession(ctx, teacherID)
	require.NoError(t, err)
	require.Empty(t, mapped)

	_, err = env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)
}

func TestJoinDuplicateStudent(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-duplicate"

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	join := dto.JoinSessionRequest{TeacherID: teacherID, StudentID: "alice", StudentName: "Alice"}
	_, err = env.svc.JoinStudent(ctx, join)
	require.NoError(t, err)

	_, err = env.svc.JoinStudent(ctx, join)
	require.ErrorIs(t, err, ErrDuplicateStudent)

	// A roster id stays claimed after the student leaves; reconnecting
	// clients join under a fresh id so the departed entry's totals survive.
	require.NoError(t, env.svc.RemoveStudent(ctx, dto.LeaveSessionRequest{TeacherID: teacherID, StudentID: "alice"}))
	_, err = env.svc.JoinStudent(ctx, join)
	require.ErrorIs(t, err, ErrDuplicateStudent)
}

func TestMutationsWithoutActiveSession(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-idle"

	_, err := env.svc.RecordAttention(ctx, dto.AttentionRequest{
		TeacherID: teacherID,
		StudentID: "alice",
		Direction: "center",
	})
	require.ErrorIs(t, err, ErrNoActiveSession)

	_, err = env.svc.EndSession(ctx, dto.EndSessionRequest{TeacherID: teacherID})
	require.ErrorIs(t, err, ErrNoActiveSession)

	_, err = env.svc.SessionData(ctx, teacherID)
	require.ErrorIs(t, err, ErrNoActiveSession)

	// An idle teacher simply has zero students; this is not a failure.
	count, err := env.svc.ActiveStudentCount(ctx, teacherID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRecordAttentionUnknownStudent(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-unknown-student"

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.RecordAttention(ctx, dto.AttentionRequest{
		TeacherID: teacherID,
		StudentID: "ghost",
		Direction: "center",
	})
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestRemoveStudentFreezesMetrics(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-leave"

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.JoinStudent(ctx, dto.JoinSessionRequest{TeacherID: teacherID, StudentID: "alice", StudentName: "Alice"})
	require.NoError(t, err)

	_, err = env.svc.RecordAttention(ctx, dto.AttentionRequest{TeacherID: teacherID, StudentID: "alice", Direction: "center"})
	require.NoError(t, err)

	env.clock.Advance(20 * time.Second)
	require.NoError(t, env.svc.RemoveStudent(ctx, dto.LeaveSessionRequest{TeacherID: teacherID, StudentID: "alice"}))

	count, err := env.svc.ActiveStudentCount(ctx, teacherID)
	require.NoError(t, err)
	require.Zero(t, count)

	// A departed student cannot receive further observations.
	_, err = env.svc.RecordAttention(ctx, dto.AttentionRequest{TeacherID: teacherID, StudentID: "alice", Direction: "left"})
	require.ErrorIs(t, err, ErrStudentNotFound)

	data, err := env.svc.SessionData(ctx, teacherID)
	require.NoError(t, err)
	require.Len(t, data.Students, 1)
	require.False(t, data.Students[0].IsActive)
	require.Equal(t, int64(20_000), data.Students[0].TotalAttentiveMs)
}

func TestConcurrentObservationsAllPersist(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-concurrent"

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	students := []string{"alice", "bob"}
	for _, id := range students {
		_, err = env.svc.JoinStudent(ctx, dto.JoinSessionRequest{TeacherID: teacherID, StudentID: id, StudentName: id})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(students))
	for _, id := range students {
		wg.Add(1)
		go func(studentID string) {
			defer wg.Done()
			_, err := env.svc.RecordAttention(ctx, dto.AttentionRequest{
				TeacherID: teacherID,
				StudentID: studentID,
				Direction: "center",
			})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	data, err := env.svc.SessionData(ctx, teacherID)
	require.NoError(t, err)
	for _, student := range data.Students {
		require.NotNil(t, student.CurrentDirection, "observation lost for %s", student.StudentID)
	}
}

func TestTeacherLocksEvictIdleEntries(t *testing.T) {
	locks := newTeacherLocks()

	unlock := locks.lock("teacher-1")
	unlock()
	require.Empty(t, locks.locks)

	// Contended entries survive until the last holder releases.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		for _, teacherID := range []string{"teacher-a", "teacher-b"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				release := locks.lock(id)
				release()
			}(teacherID)
		}
	}
	wg.Wait()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	require.Empty(t, locks.locks)
}

func TestSummaryRequiresEndedSession(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-summary-active"

	started, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.SessionSummary(ctx, teacherID, started.SessionID)
	require.ErrorIs(t, err, ErrSessionStillActive)

	_, err = env.svc.SessionSummary(ctx, teacherID, "no-such-session")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSummaryIsCachedAfterEnd(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-summary-cache"

	started, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.JoinStudent(ctx, dto.JoinSessionRequest{TeacherID: teacherID, StudentID: "alice", StudentName: "Alice"})
	require.NoError(t, err)

	ended, err := env.svc.EndSession(ctx, dto.EndSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	// Mutate the stored row directly; the cached summary must win.
	require.NoError(t, env.db.Model(&models.Session{}).
		Where("id = ?", started.SessionID).
		Update("start_time", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)).Error)

	fetched, err := env.svc.SessionSummary(ctx, teacherID, started.SessionID)
	require.NoError(t, err)
	require.Equal(t, ended, fetched)
}

func TestHistoryTrimmingKeepsTotalsExact(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{MaxAttentionRecords: 5})
	ctx := context.Background()
	teacherID := "teacher-trim"

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.JoinStudent(ctx, dto.JoinSessionRequest{TeacherID: teacherID, StudentID: "alice", StudentName: "Alice"})
	require.NoError(t, err)

	// 20 observations, 1s apart, alternating attentive/away.
	directions := []string{"center", "left"}
	var last dto.AttentionMetricsResponse
	for i := 0; i < 20; i++ {
		last, err = env.svc.RecordAttention(ctx, dto.AttentionRequest{
			TeacherID: teacherID,
			StudentID: "alice",
			Direction: directions[i%2],
		})
		require.NoError(t, err)
		env.clock.Advance(time.Second)
	}

	// 19 elapsed seconds between first and last observation, half attentive.
	require.Equal(t, int64(19_000), last.TotalSessionMs)
	require.Equal(t, int64(10_000), last.TotalAttentiveMs)

	data, err := env.svc.SessionData(ctx, teacherID)
	require.NoError(t, err)
	require.Equal(t, int64(19_000), data.Students[0].TotalSessionMs)
}

func TestGraphMetricSeriesIsCapped(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{MaxGraphSamples: 3})
	ctx := context.Background()
	teacherID := "teacher-samples"

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	_, err = env.svc.JoinStudent(ctx, dto.JoinSessionRequest{TeacherID: teacherID, StudentID: "alice", StudentName: "Alice"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		env.clock.Advance(time.Second)
		_, err = env.svc.RecordAttention(ctx, dto.AttentionRequest{TeacherID: teacherID, StudentID: "alice", Direction: "center"})
		require.NoError(t, err)
	}

	data, err := env.svc.SessionData(ctx, teacherID)
	require.NoError(t, err)
	require.Len(t, data.GraphMetrics, 3)

	// Most recent samples are the ones kept.
	lastKept := data.GraphMetrics[len(data.GraphMetrics)-1]
	require.Equal(t, env.clock.Now(), lastKept.Timestamp)
}

func TestJoinSanitizesStudentName(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})
	ctx := context.Background()
	teacherID := "teacher-sanitize"

	_, err := env.svc.StartSession(ctx, dto.StartSessionRequest{TeacherID: teacherID})
	require.NoError(t, err)

	joined, err := env.svc.JoinStudent(ctx, dto.JoinSessionRequest{
		TeacherID:   teacherID,
		StudentID:   "alice",
		StudentName: "<script>alert(1)</script>Alice",
	})
	require.NoError(t, err)
	require.Equal(t, "Alice", joined.StudentName)
}

func TestValidationRejectsBadDirection(t *testing.T) {
	env := newSessionTestEnv(t, SessionOptions{})

	_, err := env.svc.RecordAttention(context.Background(), dto.AttentionRequest{
		TeacherID: "teacher-validation",
		StudentID: "alice",
		Direction: "sideways",
	})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}
