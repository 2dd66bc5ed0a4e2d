package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/eyeai-api/internal/attention"
	"github.com/noah-isme/eyeai-api/internal/dto"
	"github.com/noah-isme/eyeai-api/internal/models"
	"github.com/noah-isme/eyeai-api/internal/observability"
	"github.com/noah-isme/eyeai-api/internal/registry"
	"github.com/noah-isme/eyeai-api/internal/repository"
)

var (
	// ErrNoActiveSession indicates the teacher has no live session. Callers
	// treat this as a normal outcome, not a failure.
	ErrNoActiveSession = errors.New("no active session")
	// ErrStudentNotFound indicates the student is not on the active roster.
	ErrStudentNotFound = errors.New("student not found in session")
	// ErrDuplicateStudent indicates the student id is already on the roster.
	ErrDuplicateStudent = errors.New("student already joined session")
	// ErrSessionStillActive indicates a summary was requested before the
	// session ended.
	ErrSessionStillActive = errors.New("session is still active")
	// ErrSessionNotFound indicates no session matches the given identifiers.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUpdateContention indicates the bounded optimistic retry budget was
	// exhausted without a clean save.
	ErrUpdateContention = errors.New("session update contention not resolved")
)

// SessionOptions tunes the orchestrator.
type SessionOptions struct {
	// MutationTimeout bounds every mutation pipeline run, including the
	// persistence and notification calls it makes.
	MutationTimeout time.Duration
	// MaxSaveAttempts bounds the optimistic-lock retry loop.
	MaxSaveAttempts int
	// MaxAttentionRecords caps the stored per-student history. Trimmed
	// records fold their contribution into carried totals so accounting
	// stays exact.
	MaxAttentionRecords int
	// MaxGraphSamples caps the stored metric series, keeping the most
	// recent samples.
	MaxGraphSamples int
	// SummaryCacheTTL bounds how long an ended session's summary is cached.
	SummaryCacheTTL time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.MutationTimeout <= 0 {
		o.MutationTimeout = 5 * time.Second
	}
	if o.MaxSaveAttempts <= 0 {
		o.MaxSaveAttempts = 5
	}
	if o.MaxAttentionRecords <= 0 {
		o.MaxAttentionRecords = 2000
	}
	if o.MaxGraphSamples <= 0 {
		o.MaxGraphSamples = 1000
	}
	if o.SummaryCacheTTL <= 0 {
		o.SummaryCacheTTL = 15 * time.Minute
	}
	return o
}

// SessionService is the attention session orchestrator. Every mutation runs
// the same pipeline: load the aggregate, apply the change, recompute the
// affected metrics, take a population snapshot, persist, then notify
// observers. Mutations for one teacher are serialized on this node by a
// keyed mutex and across nodes by the aggregate's optimistic version.
type SessionService interface {
	StartSession(ctx context.Context, payload dto.StartSessionRequest) (dto.SessionStartedResponse, error)
	EndSession(ctx context.Context, payload dto.EndSessionRequest) (dto.SessionSummaryResponse, error)
	JoinStudent(ctx context.Context, payload dto.JoinSessionRequest) (dto.StudentJoinedResponse, error)
	RecordAttention(ctx context.Context, payload dto.AttentionRequest) (dto.AttentionMetricsResponse, error)
	UpdateCameraStatus(ctx context.Context, payload dto.CameraStatusRequest) (dto.CameraStatusResponse, error)
	RemoveStudent(ctx context.Context, payload dto.LeaveSessionRequest) error
	SessionData(ctx context.Context, teacherID string) (dto.SessionDataResponse, error)
	ActiveStudentCount(ctx context.Context, teacherID string) (int, error)
	SessionSummary(ctx context.Context, teacherID, sessionID string) (dto.SessionSummaryResponse, error)
}

type sessionService struct {
	repo      repository.SessionRepository
	registry  registry.SessionRegistry
	notifier  Notifier
	cache     *redis.Client
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	options   SessionOptions
	locks     *teacherLocks
	now       func() time.Time
}

// NewSessionService constructs the orchestrator.
func NewSessionService(repo repository.SessionRepository, reg registry.SessionRegistry, notifier Notifier, cache *redis.Client, validate *validator.Validate, logger zerolog.Logger, options SessionOptions) SessionService {
	return &sessionService{
		repo:      repo,
		registry:  reg,
		notifier:  notifier,
		cache:     cache,
		validator: validate,
		logger:    logger.With().Str("component", "session_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/eyeai-api/internal/service/session"),
		sanitizer: bluemonday.StrictPolicy(),
		options:   options.withDefaults(),
		locks:     newTeacherLocks(),
		now:       time.Now,
	}
}

// teacherLocks serializes the mutation pipeline per teacher on this node.
// Entries are reference-counted and evicted once the last holder unlocks, so
// the map stays proportional to in-flight teachers rather than every teacher
// ever seen.
type teacherLocks struct {
	mu    sync.Mutex
	locks map[string]*teacherLock
}

type teacherLock struct {
	mu   sync.Mutex
	refs int
}

func newTeacherLocks() *teacherLocks {
	return &teacherLocks{locks: make(map[string]*teacherLock)}
}

func (t *teacherLocks) lock(teacherID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[teacherID]
	if !ok {
		lock = &teacherLock{}
		t.locks[teacherID] = lock
	}
	lock.refs++
	t.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		t.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(t.locks, teacherID)
		}
		t.mu.Unlock()
	}
}

func (s *sessionService) StartSession(ctx context.Context, payload dto.StartSessionRequest) (dto.SessionStartedResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionStartedResponse{}, err
	}

	unlock := s.locks.lock(payload.TeacherID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.options.MutationTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "session.start", trace.WithAttributes(
		attribute.String("session.teacher_id", payload.TeacherID),
	))
	defer span.End()

	now := s.now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		TeacherID: payload.TeacherID,
		StartTime: now,
		IsActive:  true,
	}
	session.SetRoster([]models.StudentSession{})
	session.SetMetrics([]models.GraphMetricSample{})

	if err := s.registry.Activate(ctx, payload.TeacherID, session.ID); err != nil {
		if !errors.Is(err, registry.ErrTeacherBusy) {
			span.RecordError(err)
			return dto.SessionStartedResponse{}, err
		}
		// The slot may be held by a stale entry a failed Deactivate left
		// behind; a genuinely live session keeps its claim.
		if err := s.reclaimStaleSlot(ctx, payload.TeacherID, session.ID); err != nil {
			span.RecordError(err)
			return dto.SessionStartedResponse{}, err
		}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		span.RecordError(err)
		if rollbackErr := s.registry.Deactivate(ctx, payload.TeacherID); rollbackErr != nil {
			s.logger.Error().Err(rollbackErr).Str("teacher_id", payload.TeacherID).Msg("failed to roll back registry entry")
		}
		return dto.SessionStartedResponse{}, err
	}

	observability.ActiveSessions().Inc()
	s.logger.Info().Str("teacher_id", payload.TeacherID).Str("session_id", session.ID).Msg("session started")

	s.notifier.Publish(ctx, payload.TeacherID, EventSessionStart, map[string]string{"session_id": session.ID})

	return dto.SessionStartedResponse{
		SessionID: session.ID,
		TeacherID: payload.TeacherID,
		StartTime: session.StartTime,
	}, nil
}

func (s *sessionService) EndSession(ctx context.Context, payload dto.EndSessionRequest) (dto.SessionSummaryResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionSummaryResponse{}, err
	}

	unlock := s.locks.lock(payload.TeacherID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.options.MutationTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "session.end", trace.WithAttributes(
		attribute.String("session.teacher_id", payload.TeacherID),
	))
	defer span.End()

	var ended *models.Session
	err := s.withSession(ctx, payload.TeacherID, func(session *models.Session, now time.Time) error {
		roster := session.Roster()
		for i := range roster {
			s.finalizeStudent(&roster[i], now)
		}
		session.SetRoster(roster)
		session.EndTime = &now
		session.IsActive = false
		ended = session
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.SessionSummaryResponse{}, err
	}

	if err := s.registry.Deactivate(ctx, payload.TeacherID); err != nil {
		s.logger.Error().Err(err).Str("teacher_id", payload.TeacherID).Msg("failed to deregister ended session")
	}

	observability.ActiveSessions().Dec()
	s.logger.Info().Str("teacher_id", payload.TeacherID).Str("session_id", ended.ID).Msg("session ended")

	summary := s.buildSummary(ended)
	s.cacheSummary(ctx, summary)
	s.notifier.Publish(ctx, payload.TeacherID, EventSessionEnd, summary)

	return summary, nil
}

func (s *sessionService) JoinStudent(ctx context.Context, payload dto.JoinSessionRequest) (dto.StudentJoinedResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentJoinedResponse{}, err
	}

	name := strings.TrimSpace(s.sanitizer.Sanitize(payload.StudentName))
	if name == "" {
		return dto.StudentJoinedResponse{}, fmt.Errorf("student name empty after sanitization")
	}

	unlock := s.locks.lock(payload.TeacherID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.options.MutationTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "session.join", trace.WithAttributes(
		attribute.String("session.teacher_id", payload.TeacherID),
		attribute.String("session.student_id", payload.StudentID),
	))
	defer span.End()

	var joinedAt time.Time
	var count int
	var sample models.GraphMetricSample
	err := s.withSession(ctx, payload.TeacherID, func(session *models.Session, now time.Time) error {
		roster := session.Roster()
		for i := range roster {
			if roster[i].StudentID == payload.StudentID {
				return ErrDuplicateStudent
			}
		}

		roster = append(roster, models.StudentSession{
			StudentID:    payload.StudentID,
			StudentName:  name,
			CameraStatus: models.CameraInactive,
			IsActive:     true,
			JoinedAt:     now,
			LastUpdate:   now,
		})
		session.SetRoster(roster)

		joinedAt = now
		count = session.ActiveStudentCount()
		sample = s.appendSample(session, roster, now)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.StudentJoinedResponse{}, err
	}

	s.notifier.Publish(ctx, payload.TeacherID, EventStudentJoined, dto.StudentJoinedResponse{
		StudentID:    payload.StudentID,
		StudentName:  name,
		JoinedAt:     joinedAt,
		StudentCount: count,
	})
	s.notifier.Publish(ctx, payload.TeacherID, EventStudentCount, dto.StudentCountEvent{Count: count})
	s.notifier.Publish(ctx, payload.TeacherID, EventGraphMetrics, dto.NewGraphMetricResponse(sample))

	return dto.StudentJoinedResponse{
		StudentID:    payload.StudentID,
		StudentName:  name,
		JoinedAt:     joinedAt,
		StudentCount: count,
	}, nil
}

func (s *sessionService) RecordAttention(ctx context.Context, payload dto.AttentionRequest) (dto.AttentionMetricsResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttentionMetricsResponse{}, err
	}

	direction := models.Direction(payload.Direction)

	unlock := s.locks.lock(payload.TeacherID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.options.MutationTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "session.observe", trace.WithAttributes(
		attribute.String("session.teacher_id", payload.TeacherID),
		attribute.String("session.student_id", payload.StudentID),
		attribute.String("session.direction", payload.Direction),
	))
	defer span.End()

	var response dto.AttentionMetricsResponse
	var sample models.GraphMetricSample
	err := s.withSession(ctx, payload.TeacherID, func(session *models.Session, now time.Time) error {
		roster := session.Roster()
		student := findStudent(roster, payload.StudentID)
		if student == nil {
			return ErrStudentNotFound
		}

		s.observe(student, direction, now)
		session.SetRoster(roster)

		response = dto.AttentionMetricsResponse{
			StudentID:           student.StudentID,
			StudentName:         student.StudentName,
			Direction:           payload.Direction,
			IsAttentive:         direction.Attentive(),
			Timestamp:           now,
			TotalAttentiveMs:    student.TotalAttentiveTime.Milliseconds(),
			TotalSessionMs:      student.TotalSessionTime.Milliseconds(),
			AttentionPercentage: student.AttentionPercentage,
		}
		sample = s.appendSample(session, roster, now)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.AttentionMetricsResponse{}, err
	}

	observability.Observations().WithLabelValues(payload.Direction).Inc()

	s.notifier.Publish(ctx, payload.TeacherID, EventAttentionMetrics, response)
	s.notifier.Publish(ctx, payload.TeacherID, EventGraphMetrics, dto.NewGraphMetricResponse(sample))

	return response, nil
}

func (s *sessionService) UpdateCameraStatus(ctx context.Context, payload dto.CameraStatusRequest) (dto.CameraStatusResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CameraStatusResponse{}, err
	}

	unlock := s.locks.lock(payload.TeacherID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.options.MutationTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "session.camera", trace.WithAttributes(
		attribute.String("session.teacher_id", payload.TeacherID),
		attribute.String("session.student_id", payload.StudentID),
		attribute.String("session.camera_status", payload.Status),
	))
	defer span.End()

	var response dto.CameraStatusResponse
	var sample models.GraphMetricSample
	err := s.withSession(ctx, payload.TeacherID, func(session *models.Session, now time.Time) error {
		roster := session.Roster()
		student := findStudent(roster, payload.StudentID)
		if student == nil {
			return ErrStudentNotFound
		}

		// A camera change does not synthesize an attention record; the last
		// observed direction keeps accruing until the next real observation.
		student.CameraStatus = models.CameraStatus(payload.Status)
		student.LastUpdate = now
		session.SetRoster(roster)

		response = dto.CameraStatusResponse{
			StudentID:    student.StudentID,
			StudentName:  student.StudentName,
			CameraStatus: payload.Status,
			Timestamp:    now,
		}
		sample = s.appendSample(session, roster, now)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.CameraStatusResponse{}, err
	}

	s.notifier.Publish(ctx, payload.TeacherID, EventGraphMetrics, dto.NewGraphMetricResponse(sample))

	return response, nil
}

func (s *sessionService) RemoveStudent(ctx context.Context, payload dto.LeaveSessionRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	unlock := s.locks.lock(payload.TeacherID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.options.MutationTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "session.leave", trace.WithAttributes(
		attribute.String("session.teacher_id", payload.TeacherID),
		attribute.String("session.student_id", payload.StudentID),
	))
	defer span.End()

	var leftAt time.Time
	var count int
	var sample models.GraphMetricSample
	err := s.withSession(ctx, payload.TeacherID, func(session *models.Session, now time.Time) error {
		roster := session.Roster()
		student := findStudent(roster, payload.StudentID)
		if student == nil {
			return ErrStudentNotFound
		}

		s.finalizeStudent(student, now)
		student.IsActive = false
		session.SetRoster(roster)

		leftAt = now
		count = session.ActiveStudentCount()
		sample = s.appendSample(session, roster, now)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.notifier.Publish(ctx, payload.TeacherID, EventStudentLeft, dto.StudentLeftEvent{
		StudentID: payload.StudentID,
		Timestamp: leftAt,
	})
	s.notifier.Publish(ctx, payload.TeacherID, EventStudentCount, dto.StudentCountEvent{Count: count})
	s.notifier.Publish(ctx, payload.TeacherID, EventGraphMetrics, dto.NewGraphMetricResponse(sample))

	return nil
}

func (s *sessionService) SessionData(ctx context.Context, teacherID string) (dto.SessionDataResponse, error) {
	session, err := s.loadActive(ctx, teacherID)
	if err != nil {
		return dto.SessionDataResponse{}, err
	}

	roster := session.Roster()
	students := make([]dto.StudentStateResponse, 0, len(roster))
	for _, student := range roster {
		students = append(students, dto.NewStudentStateResponse(student))
	}

	return dto.SessionDataResponse{
		SessionID:     session.ID,
		TeacherID:     session.TeacherID,
		StartTime:     session.StartTime,
		TotalStudents: len(roster),
		Students:      students,
		GraphMetrics:  dto.NewGraphMetricResponseSlice(session.Metrics()),
	}, nil
}

func (s *sessionService) ActiveStudentCount(ctx context.Context, teacherID string) (int, error) {
	session, err := s.loadActive(ctx, teacherID)
	if errors.Is(err, ErrNoActiveSession) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return session.ActiveStudentCount(), nil
}

func (s *sessionService) SessionSummary(ctx context.Context, teacherID, sessionID string) (dto.SessionSummaryResponse, error) {
	if cached, ok := s.cachedSummary(ctx, sessionID); ok && cached.TeacherID == teacherID {
		return cached, nil
	}

	session, err := s.repo.FindByTeacherAndID(ctx, teacherID, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return dto.SessionSummaryResponse{}, ErrSessionNotFound
	}
	if err != nil {
		return dto.SessionSummaryResponse{}, err
	}

	if session.IsActive {
		return dto.SessionSummaryResponse{}, ErrSessionStillActive
	}

	summary := s.buildSummary(session)
	s.cacheSummary(ctx, summary)
	return summary, nil
}

// withSession runs one mutation pipeline iteration: resolve the active
// session through the registry, load it, apply fn, and save. A version
// conflict reloads and retries within a bounded budget; any other failure
// leaves the persisted state at its last committed value.
func (s *sessionService) withSession(ctx context.Context, teacherID string, fn func(session *models.Session, now time.Time) error) error {
	sessionID, err := s.registry.ActiveSession(ctx, teacherID)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return ErrNoActiveSession
	}

	for attempt := 0; attempt < s.options.MaxSaveAttempts; attempt++ {
		session, err := s.repo.FindByID(ctx, sessionID)
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.releaseStaleSlot(ctx, teacherID, sessionID)
			return ErrNoActiveSession
		}
		if err != nil {
			return err
		}
		if !session.IsActive {
			s.releaseStaleSlot(ctx, teacherID, sessionID)
			return ErrNoActiveSession
		}

		if err := fn(session, s.now().UTC()); err != nil {
			return err
		}

		err = s.repo.Save(ctx, session)
		if errors.Is(err, repository.ErrVersionConflict) {
			observability.MutationConflicts().Inc()
			s.logger.Debug().Str("teacher_id", teacherID).Int("attempt", attempt+1).Msg("session save conflict, retrying")
			continue
		}
		return err
	}

	return ErrUpdateContention
}

func (s *sessionService) loadActive(ctx context.Context, teacherID string) (*models.Session, error) {
	sessionID, err := s.registry.ActiveSession(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, ErrNoActiveSession
	}

	session, err := s.repo.FindByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		s.releaseStaleSlot(ctx, teacherID, sessionID)
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// reclaimStaleSlot takes over a registry claim that points at a session which
// no longer exists or already ended. A failed Deactivate after EndSession
// persisted the row leaves exactly this state behind; without a takeover the
// teacher could never start again.
func (s *sessionService) reclaimStaleSlot(ctx context.Context, teacherID, sessionID string) error {
	staleID, err := s.registry.ActiveSession(ctx, teacherID)
	if err != nil {
		return err
	}
	if staleID == "" {
		// The previous owner released the slot between our two calls.
		return s.registry.Activate(ctx, teacherID, sessionID)
	}

	existing, err := s.repo.FindByID(ctx, staleID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	if existing != nil && existing.IsActive {
		return registry.ErrTeacherBusy
	}

	s.logger.Warn().
		Str("teacher_id", teacherID).
		Str("stale_session_id", staleID).
		Msg("registry maps teacher to a dead session, reclaiming slot")
	return s.registry.Reclaim(ctx, teacherID, staleID, sessionID)
}

// releaseStaleSlot drops a registry entry that points at a missing or ended
// session, so the next StartSession can claim the slot normally. Best-effort:
// the reclaim path in StartSession covers a failed release.
func (s *sessionService) releaseStaleSlot(ctx context.Context, teacherID, sessionID string) {
	if err := s.registry.Release(ctx, teacherID, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("teacher_id", teacherID).Msg("failed to drop stale registry entry")
	}
}

// observe appends one attention record, back-filling the previous record's
// duration, and recomputes the student's derived metrics as of now.
func (s *sessionService) observe(student *models.StudentSession, direction models.Direction, now time.Time) {
	if last := student.LastRecord(); last != nil {
		duration := now.Sub(last.Timestamp)
		if duration < 0 {
			duration = 0
		}
		last.Duration = duration
	}

	student.AttentionRecords = append(student.AttentionRecords, models.AttentionRecord{
		Direction:   direction,
		IsAttentive: direction.Attentive(),
		Timestamp:   now,
	})
	s.trimHistory(student)
	s.recompute(student, now)
	student.LastUpdate = now
}

// trimHistory enforces the record cap. The oldest record's interval is
// folded into the carried totals before it is dropped, so recomputation over
// the remaining records still yields exact lifetime totals.
func (s *sessionService) trimHistory(student *models.StudentSession) {
	for len(student.AttentionRecords) > s.options.MaxAttentionRecords {
		oldest := student.AttentionRecords[0]
		next := student.AttentionRecords[1]

		interval := next.Timestamp.Sub(oldest.Timestamp)
		if interval < 0 {
			interval = 0
		}
		student.CarriedElapsedTime += interval
		if oldest.IsAttentive {
			student.CarriedAttentiveTime += interval
		}

		student.AttentionRecords = student.AttentionRecords[1:]
	}
}

func (s *sessionService) recompute(student *models.StudentSession, asOf time.Time) {
	metrics := attention.Compute(student.AttentionRecords, asOf, attention.Carry{
		AttentiveTime: student.CarriedAttentiveTime,
		ElapsedTime:   student.CarriedElapsedTime,
	})
	student.TotalAttentiveTime = metrics.AttentiveTime
	student.TotalSessionTime = metrics.SessionTime
	student.AttentionPercentage = metrics.Percentage
}

// finalizeStudent closes the open interval and freezes the metrics as of
// the given instant.
func (s *sessionService) finalizeStudent(student *models.StudentSession, at time.Time) {
	if last := student.LastRecord(); last != nil {
		duration := at.Sub(last.Timestamp)
		if duration < 0 {
			duration = 0
		}
		last.Duration = duration
	}
	s.recompute(student, at)
	student.LastUpdate = at
}

// appendSample takes a population snapshot and appends it to the session's
// metric series. A count mismatch against the active roster is a logic
// defect: it is reported loudly and recorded, never silently corrected.
func (s *sessionService) appendSample(session *models.Session, roster []models.StudentSession, now time.Time) models.GraphMetricSample {
	sample := attention.SampleRoster(roster, now)

	if active := session.ActiveStudentCount(); sample.Total() != active {
		observability.SampleInvariantViolations().Inc()
		s.logger.Error().
			Str("session_id", session.ID).
			Int("sample_total", sample.Total()).
			Int("active_students", active).
			Msg("graph metric counts do not sum to roster size")
	}

	metrics := append(session.Metrics(), sample)
	if overflow := len(metrics) - s.options.MaxGraphSamples; overflow > 0 {
		metrics = metrics[overflow:]
	}
	session.SetMetrics(metrics)

	return sample
}

func (s *sessionService) buildSummary(session *models.Session) dto.SessionSummaryResponse {
	roster := session.Roster()
	ranked := attention.Leaderboard(roster)

	leaderboard := make([]dto.LeaderboardEntry, 0, len(ranked))
	for i, student := range ranked {
		leaderboard = append(leaderboard, dto.LeaderboardEntry{
			Rank:                i + 1,
			StudentID:           student.StudentID,
			StudentName:         student.StudentName,
			CameraStatus:        string(student.CameraStatus),
			TotalAttentiveMs:    student.TotalAttentiveTime.Milliseconds(),
			TotalSessionMs:      student.TotalSessionTime.Milliseconds(),
			AttentionPercentage: student.AttentionPercentage,
		})
	}

	endTime := s.now().UTC()
	if session.EndTime != nil {
		endTime = *session.EndTime
	}

	return dto.SessionSummaryResponse{
		SessionID:           session.ID,
		TeacherID:           session.TeacherID,
		StartTime:           session.StartTime,
		EndTime:             endTime,
		TotalDurationMs:     session.Duration(endTime).Milliseconds(),
		TotalStudents:       len(roster),
		AverageAttention:    attention.AveragePercentage(roster),
		Leaderboard:         leaderboard,
		GraphMetricsSummary: dto.NewMetricsSummaryResponse(attention.SummariseSeries(session.Metrics())),
	}
}

func (s *sessionService) summaryCacheKey(sessionID string) string {
	return fmt.Sprintf("eyeai:summary:%s", sessionID)
}

// cacheSummary stores an ended session's summary; summaries are immutable
// once the session is finalized, so a cache hit is always exact.
func (s *sessionService) cacheSummary(ctx context.Context, summary dto.SessionSummaryResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal session summary for cache")
		return
	}

	if err := s.cache.Set(ctx, s.summaryCacheKey(summary.SessionID), payload, s.options.SummaryCacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache session summary")
	}
}

func (s *sessionService) cachedSummary(ctx context.Context, sessionID string) (dto.SessionSummaryResponse, bool) {
	if s.cache == nil {
		return dto.SessionSummaryResponse{}, false
	}

	result, err := s.cache.Get(ctx, s.summaryCacheKey(sessionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read session summary cache")
		}
		return dto.SessionSummaryResponse{}, false
	}

	var summary dto.SessionSummaryResponse
	if err := json.Unmarshal([]byte(result), &summary); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached session summary")
		return dto.SessionSummaryResponse{}, false
	}
	return summary, true
}

func findStudent(roster []models.StudentSession, studentID string) *models.StudentSession {
	for i := range roster {
		if roster[i].StudentID == studentID && roster[i].IsActive {
			return &roster[i]
		}
	}
	return nil
}
