package attention

import (
	"sort"

	"github.com/noah-isme/eyeai-api/internal/models"
)

// SeriesStats summarises a graph metric series with per-category mean and
// peak values. A zero value describes an empty series.
type SeriesStats struct {
	Samples                 int
	AverageAttentiveCount   float64
	AverageInattentiveCount float64
	AverageCameraOffCount   float64
	AverageNotDetectedCount float64
	PeakAttentiveCount      int
	PeakInattentiveCount    int
	PeakCameraOffCount      int
	PeakNotDetectedCount    int
}

// SummariseSeries computes the mean and peak of every population category
// over the full metric series. An empty series yields zero-filled stats
// rather than dividing by zero.
func SummariseSeries(samples []models.GraphMetricSample) SeriesStats {
	stats := SeriesStats{Samples: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var attentive, inattentive, cameraOff, notDetected int
	for _, sample := range samples {
		attentive += sample.AttentiveCount
		inattentive += sample.InattentiveCount
		cameraOff += sample.CameraOffCount
		notDetected += sample.NotDetectedCount

		if sample.AttentiveCount > stats.PeakAttentiveCount {
			stats.PeakAttentiveCount = sample.AttentiveCount
		}
		if sample.InattentiveCount > stats.PeakInattentiveCount {
			stats.PeakInattentiveCount = sample.InattentiveCount
		}
		if sample.CameraOffCount > stats.PeakCameraOffCount {
			stats.PeakCameraOffCount = sample.CameraOffCount
		}
		if sample.NotDetectedCount > stats.PeakNotDetectedCount {
			stats.PeakNotDetectedCount = sample.NotDetectedCount
		}
	}

	total := float64(len(samples))
	stats.AverageAttentiveCount = float64(attentive) / total
	stats.AverageInattentiveCount = float64(inattentive) / total
	stats.AverageCameraOffCount = float64(cameraOff) / total
	stats.AverageNotDetectedCount = float64(notDetected) / total

	return stats
}

// Leaderboard returns the students ranked by attention percentage,
// descending. The sort is stable so ties keep their roster order.
func Leaderboard(students []models.StudentSession) []models.StudentSession {
	ranked := make([]models.StudentSession, len(students))
	copy(ranked, students)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AttentionPercentage > ranked[j].AttentionPercentage
	})
	return ranked
}

// AveragePercentage computes the mean attention percentage over all
// students, zero when the roster is empty.
func AveragePercentage(students []models.StudentSession) float64 {
	if len(students) == 0 {
		return 0
	}

	var total float64
	for _, student := range students {
		total += student.AttentionPercentage
	}
	return total / float64(len(students))
}
