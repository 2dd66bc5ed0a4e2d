package attention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eyeai-api/internal/models"
)

func student(id string, camera models.CameraStatus, records ...models.AttentionRecord) models.StudentSession {
	return models.StudentSession{
		StudentID:        id,
		StudentName:      "Student " + id,
		CameraStatus:     camera,
		IsActive:         true,
		AttentionRecords: records,
	}
}

func TestSampleRosterClassifiesEveryActiveStudentOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	roster := []models.StudentSession{
		student("a", models.CameraActive, record(models.DirectionCenter, now.Add(-time.Second))),
		student("b", models.CameraActive, record(models.DirectionLeft, now.Add(-time.Second))),
		student("c", models.CameraInactive, record(models.DirectionCenter, now.Add(-time.Second))),
		student("d", models.CameraNotDetected),
		student("e", models.CameraActive),
	}

	sample := SampleRoster(roster, now)
	require.Equal(t, 1, sample.AttentiveCount)
	// Students with no observation yet count as inattentive.
	require.Equal(t, 2, sample.InattentiveCount)
	require.Equal(t, 1, sample.CameraOffCount)
	require.Equal(t, 1, sample.NotDetectedCount)
	require.Equal(t, len(roster), sample.Total())
	require.Equal(t, now, sample.Timestamp)
}

func TestSampleRosterSkipsDepartedStudents(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	left := student("gone", models.CameraActive, record(models.DirectionCenter, now.Add(-time.Second)))
	left.IsActive = false

	roster := []models.StudentSession{
		left,
		student("here", models.CameraActive, record(models.DirectionCenter, now.Add(-time.Second))),
	}

	sample := SampleRoster(roster, now)
	require.Equal(t, 1, sample.Total())
	require.Equal(t, 1, sample.AttentiveCount)
}

func TestSampleRosterCameraStateWinsOverObservation(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	roster := []models.StudentSession{
		student("off", models.CameraInactive, record(models.DirectionCenter, now.Add(-time.Second))),
	}

	sample := SampleRoster(roster, now)
	require.Zero(t, sample.AttentiveCount)
	require.Equal(t, 1, sample.CameraOffCount)
}

func TestSummariseSeriesEmpty(t *testing.T) {
	stats := SummariseSeries(nil)
	require.Zero(t, stats.Samples)
	require.Zero(t, stats.AverageAttentiveCount)
	require.Zero(t, stats.PeakAttentiveCount)
}

func TestSummariseSeries(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	samples := []models.GraphMetricSample{
		{Timestamp: now, AttentiveCount: 4, InattentiveCount: 2, CameraOffCount: 1, NotDetectedCount: 1},
		{Timestamp: now.Add(time.Minute), AttentiveCount: 6, InattentiveCount: 0, CameraOffCount: 1, NotDetectedCount: 1},
	}

	stats := SummariseSeries(samples)
	require.Equal(t, 2, stats.Samples)
	require.InDelta(t, 5.0, stats.AverageAttentiveCount, 0.001)
	require.InDelta(t, 1.0, stats.AverageInattentiveCount, 0.001)
	require.Equal(t, 6, stats.PeakAttentiveCount)
	require.Equal(t, 2, stats.PeakInattentiveCount)
	require.Equal(t, 1, stats.PeakCameraOffCount)
	require.Equal(t, 1, stats.PeakNotDetectedCount)
}

func TestLeaderboardRanksDescendingAndKeepsTies(t *testing.T) {
	roster := []models.StudentSession{
		{StudentID: "low", AttentionPercentage: 20},
		{StudentID: "tie-first", AttentionPercentage: 50},
		{StudentID: "tie-second", AttentionPercentage: 50},
		{StudentID: "high", AttentionPercentage: 90},
	}

	ranked := Leaderboard(roster)
	require.Equal(t, "high", ranked[0].StudentID)
	require.Equal(t, "tie-first", ranked[1].StudentID)
	require.Equal(t, "tie-second", ranked[2].StudentID)
	require.Equal(t, "low", ranked[3].StudentID)

	// Input order is untouched.
	require.Equal(t, "low", roster[0].StudentID)
}

func TestAveragePercentage(t *testing.T) {
	require.Zero(t, AveragePercentage(nil))

	roster := []models.StudentSession{
		{AttentionPercentage: 40},
		{AttentionPercentage: 60},
	}
	require.InDelta(t, 50.0, AveragePercentage(roster), 0.001)
}
