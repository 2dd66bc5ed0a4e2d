package dto

import (
	"time"

	"github.com/noah-isme/eyeai-api/internal/attention"
	"github.com/noah-isme/eyeai-api/internal/models"
)

// StartSessionRequest begins a classroom monitoring session for a teacher.
type StartSessionRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,max=64"`
}

// EndSessionRequest finishes the teacher's active session.
type EndSessionRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,max=64"`
}

// JoinSessionRequest adds a student to the teacher's active session.
type JoinSessionRequest struct {
	TeacherID   string `json:"teacher_id" validate:"required,max=64"`
	StudentID   string `json:"student_id" validate:"required,max=64"`
	StudentName string `json:"student_name" validate:"required,max=255"`
}

// AttentionRequest pushes one classified gaze observation for a student.
type AttentionRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,max=64"`
	StudentID string `json:"student_id" validate:"required,max=64"`
	Direction string `json:"direction" validate:"required,oneof=left right up down center"`
}

// CameraStatusRequest updates a student's camera state.
type CameraStatusRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,max=64"`
	StudentID string `json:"student_id" validate:"required,max=64"`
	Status    string `json:"status" validate:"required,oneof=active inactive not_detected"`
}

// LeaveSessionRequest removes a student from the active roster.
type LeaveSessionRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,max=64"`
	StudentID string `json:"student_id" validate:"required,max=64"`
}

// SessionStartedResponse confirms a newly created session.
type SessionStartedResponse struct {
	SessionID string    `json:"session_id"`
	TeacherID string    `json:"teacher_id"`
	StartTime time.Time `json:"start_time"`
}

// StudentJoinedResponse confirms a student joined the session.
type StudentJoinedResponse struct {
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	JoinedAt     time.Time `json:"joined_at"`
	StudentCount int       `json:"student_count"`
}

// StudentLeftEvent is pushed to observers when a student leaves.
type StudentLeftEvent struct {
	StudentID string    `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StudentCountEvent carries the active roster size.
type StudentCountEvent struct {
	Count int `json:"count"`
}

// AttentionMetricsResponse reports a student's recomputed attentiveness
// after an observation was recorded.
type AttentionMetricsResponse struct {
	StudentID           string    `json:"student_id"`
	StudentName         string    `json:"student_name"`
	Direction           string    `json:"direction"`
	IsAttentive         bool      `json:"is_attentive"`
	Timestamp           time.Time `json:"timestamp"`
	TotalAttentiveMs    int64     `json:"total_attentive_time_ms"`
	TotalSessionMs      int64     `json:"total_session_time_ms"`
	AttentionPercentage float64   `json:"attention_percentage"`
}

// CameraStatusResponse confirms a camera status change.
type CameraStatusResponse struct {
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	CameraStatus string    `json:"camera_status"`
	Timestamp    time.Time `json:"timestamp"`
}

// GraphMetricResponse is one population snapshot of the classroom.
type GraphMetricResponse struct {
	Timestamp        time.Time `json:"timestamp"`
	AttentiveCount   int       `json:"attentive_count"`
	InattentiveCount int       `json:"inattentive_count"`
	CameraOffCount   int       `json:"camera_off_count"`
	NotDetectedCount int       `json:"not_detected_count"`
	TotalStudents    int       `json:"total_students"`
}

// NewGraphMetricResponse converts a sample into its DTO.
func NewGraphMetricResponse(sample models.GraphMetricSample) GraphMetricResponse {
	return GraphMetricResponse{
		Timestamp:        sample.Timestamp,
		AttentiveCount:   sample.AttentiveCount,
		InattentiveCount: sample.InattentiveCount,
		CameraOffCount:   sample.CameraOffCount,
		NotDetectedCount: sample.NotDetectedCount,
		TotalStudents:    sample.Total(),
	}
}

// NewGraphMetricResponseSlice converts a metric series into DTOs.
func NewGraphMetricResponseSlice(samples []models.GraphMetricSample) []GraphMetricResponse {
	out := make([]GraphMetricResponse, 0, len(samples))
	for _, sample := range samples {
		out = append(out, NewGraphMetricResponse(sample))
	}
	return out
}

// StudentStateResponse is the live view of one roster entry.
type StudentStateResponse struct {
	StudentID           string     `json:"student_id"`
	StudentName         string     `json:"student_name"`
	IsActive            bool       `json:"is_active"`
	CameraStatus        string     `json:"camera_status"`
	CurrentDirection    *string    `json:"current_direction,omitempty"`
	LastObservedAt      *time.Time `json:"last_observed_at,omitempty"`
	TotalAttentiveMs    int64      `json:"total_attentive_time_ms"`
	TotalSessionMs      int64      `json:"total_session_time_ms"`
	AttentionPercentage float64    `json:"attention_percentage"`
}

// NewStudentStateResponse converts a roster entry into its DTO.
func NewStudentStateResponse(student models.StudentSession) StudentStateResponse {
	response := StudentStateResponse{
		StudentID:           student.StudentID,
		StudentName:         student.StudentName,
		IsActive:            student.IsActive,
		CameraStatus:        string(student.CameraStatus),
		TotalAttentiveMs:    student.TotalAttentiveTime.Milliseconds(),
		TotalSessionMs:      student.TotalSessionTime.Milliseconds(),
		AttentionPercentage: student.AttentionPercentage,
	}

	if last := student.LastRecord(); last != nil {
		direction := string(last.Direction)
		observedAt := last.Timestamp
		response.CurrentDirection = &direction
		response.LastObservedAt = &observedAt
	}

	return response
}

// SessionDataResponse is the live dashboard view of a running session.
type SessionDataResponse struct {
	SessionID     string                 `json:"session_id"`
	TeacherID     string                 `json:"teacher_id"`
	StartTime     time.Time              `json:"start_time"`
	TotalStudents int                    `json:"total_students"`
	Students      []StudentStateResponse `json:"students"`
	GraphMetrics  []GraphMetricResponse  `json:"graph_metrics"`
}

// LeaderboardEntry is one ranked row of the end-of-session leaderboard.
type LeaderboardEntry struct {
	Rank                int     `json:"rank"`
	StudentID           string  `json:"student_id"`
	StudentName         string  `json:"student_name"`
	CameraStatus        string  `json:"camera_status"`
	TotalAttentiveMs    int64   `json:"total_attentive_time_ms"`
	TotalSessionMs      int64   `json:"total_session_time_ms"`
	AttentionPercentage float64 `json:"attention_percentage"`
}

// MetricsSummaryResponse aggregates the full graph metric series.
type MetricsSummaryResponse struct {
	Samples                 int     `json:"samples"`
	AverageAttentiveCount   float64 `json:"average_attentive_count"`
	AverageInattentiveCount float64 `json:"average_inattentive_count"`
	AverageCameraOffCount   float64 `json:"average_camera_off_count"`
	AverageNotDetectedCount float64 `json:"average_not_detected_count"`
	PeakAttentiveCount      int     `json:"peak_attentive_count"`
	PeakInattentiveCount    int     `json:"peak_inattentive_count"`
	PeakCameraOffCount      int     `json:"peak_camera_off_count"`
	PeakNotDetectedCount    int     `json:"peak_not_detected_count"`
}

// NewMetricsSummaryResponse converts series stats into their DTO.
func NewMetricsSummaryResponse(stats attention.SeriesStats) MetricsSummaryResponse {
	return MetricsSummaryResponse{
		Samples:                 stats.Samples,
		AverageAttentiveCount:   stats.AverageAttentiveCount,
		AverageInattentiveCount: stats.AverageInattentiveCount,
		AverageCameraOffCount:   stats.AverageCameraOffCount,
		AverageNotDetectedCount: stats.AverageNotDetectedCount,
		PeakAttentiveCount:      stats.PeakAttentiveCount,
		PeakInattentiveCount:    stats.PeakInattentiveCount,
		PeakCameraOffCount:      stats.PeakCameraOffCount,
		PeakNotDetectedCount:    stats.PeakNotDetectedCount,
	}
}

// SessionSummaryResponse is the end-of-session report with the leaderboard.
type SessionSummaryResponse struct {
	SessionID           string                 `json:"session_id"`
	TeacherID           string                 `json:"teacher_id"`
	StartTime           time.Time              `json:"start_time"`
	EndTime             time.Time              `json:"end_time"`
	TotalDurationMs     int64                  `json:"total_duration_ms"`
	TotalStudents       int                    `json:"total_students"`
	AverageAttention    float64                `json:"average_attention_percentage"`
	Leaderboard         []LeaderboardEntry     `json:"leaderboard"`
	GraphMetricsSummary MetricsSummaryResponse `json:"graph_metrics_summary"`
}

// StudentCountResponse reports the active roster size.
type StudentCountResponse struct {
	Count int `json:"count"`
}
