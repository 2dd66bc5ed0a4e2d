package models

import (
	"time"

	"gorm.io/datatypes"
)

// Direction is a classified gaze direction pushed by a student client.
type Direction string

// Supported gaze directions.
const (
	DirectionLeft   Direction = "left"
	DirectionRight  Direction = "right"
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionCenter Direction = "center"
)

// Valid reports whether the direction is one of the supported values.
func (d Direction) Valid() bool {
	switch d {
	case DirectionLeft, DirectionRight, DirectionUp, DirectionDown, DirectionCenter:
		return true
	}
	return false
}

// Attentive reports whether the direction counts as facing the screen.
func (d Direction) Attentive() bool {
	return d == DirectionCenter
}

// CameraStatus describes the state of a student's camera feed.
type CameraStatus string

// Supported camera states.
const (
	CameraActive      CameraStatus = "active"
	CameraInactive    CameraStatus = "inactive"
	CameraNotDetected CameraStatus = "not_detected"
)

// Valid reports whether the camera status is one of the supported values.
func (s CameraStatus) Valid() bool {
	switch s {
	case CameraActive, CameraInactive, CameraNotDetected:
		return true
	}
	return false
}

// AttentionRecord is a single direction observation. Duration is back-filled
// when the next record for the same student arrives, or when the session ends.
type AttentionRecord struct {
	Direction   Direction     `json:"direction"`
	IsAttentive bool          `json:"is_attentive"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
}

// StudentSession is the per-student state embedded in a session aggregate.
//
// CarriedAttentiveTime and CarriedElapsedTime hold the contribution of
// attention records that were trimmed once the history cap was reached, so
// totals stay exact while the stored record list stays bounded.
type StudentSession struct {
	StudentID            string            `json:"student_id"`
	StudentName          string            `json:"student_name"`
	AttentionRecords     []AttentionRecord `json:"attention_records"`
	CameraStatus         CameraStatus      `json:"camera_status"`
	IsActive             bool              `json:"is_active"`
	JoinedAt             time.Time         `json:"joined_at"`
	LastUpdate           time.Time         `json:"last_update"`
	TotalAttentiveTime   time.Duration     `json:"total_attentive_time"`
	TotalSessionTime     time.Duration     `json:"total_session_time"`
	AttentionPercentage  float64           `json:"attention_percentage"`
	CarriedAttentiveTime time.Duration     `json:"carried_attentive_time,omitempty"`
	CarriedElapsedTime   time.Duration     `json:"carried_elapsed_time,omitempty"`
}

// LastRecord returns the most recent attention record, or nil when the
// student has not produced any observation yet.
func (s *StudentSession) LastRecord() *AttentionRecord {
	if len(s.AttentionRecords) == 0 {
		return nil
	}
	return &s.AttentionRecords[len(s.AttentionRecords)-1]
}

// GraphMetricSample is a point-in-time population snapshot. The four counts
// always sum to the number of active students at sample time.
type GraphMetricSample struct {
	Timestamp        time.Time `json:"timestamp"`
	AttentiveCount   int       `json:"attentive_count"`
	InattentiveCount int       `json:"inattentive_count"`
	CameraOffCount   int       `json:"camera_off_count"`
	NotDetectedCount int       `json:"not_detected_count"`
}

// Total returns the sum of all four category counts.
func (g GraphMetricSample) Total() int {
	return g.AttentiveCount + g.InattentiveCount + g.CameraOffCount + g.NotDetectedCount
}

// Session is the aggregate for one teacher's live classroom instance. The
// roster and the metric series are stored as JSON columns on the session row
// so that a save is atomic over the whole aggregate; Version supports
// optimistic concurrency control on that save.
type Session struct {
	ID           string                                  `gorm:"primaryKey;size:36" json:"id"`
	TeacherID    string                                  `gorm:"size:64;index;not null" json:"teacher_id"`
	StartTime    time.Time                               `json:"start_time"`
	EndTime      *time.Time                              `json:"end_time,omitempty"`
	IsActive     bool                                    `gorm:"index" json:"is_active"`
	Version      uint64                                  `gorm:"not null;default:0" json:"version"`
	Students     datatypes.JSONType[[]StudentSession]    `json:"students"`
	GraphMetrics datatypes.JSONType[[]GraphMetricSample] `json:"graph_metrics"`
	CreatedAt    time.Time                               `json:"created_at"`
	UpdatedAt    time.Time                               `json:"updated_at"`
}

// Roster returns the decoded student list.
func (s *Session) Roster() []StudentSession {
	return s.Students.Data()
}

// SetRoster replaces the student list.
func (s *Session) SetRoster(students []StudentSession) {
	s.Students = datatypes.NewJSONType(students)
}

// Metrics returns the decoded graph metric series.
func (s *Session) Metrics() []GraphMetricSample {
	return s.GraphMetrics.Data()
}

// SetMetrics replaces the graph metric series.
func (s *Session) SetMetrics(samples []GraphMetricSample) {
	s.GraphMetrics = datatypes.NewJSONType(samples)
}

// ActiveStudentCount counts roster entries that have not left.
func (s *Session) ActiveStudentCount() int {
	count := 0
	for _, student := range s.Roster() {
		if student.IsActive {
			count++
		}
	}
	return count
}

// Duration returns the session length, using now for a still-active session.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if end.Before(s.StartTime) {
		return 0
	}
	return end.Sub(s.StartTime)
}
