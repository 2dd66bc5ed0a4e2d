package attention

import (
	"time"

	"github.com/noah-isme/eyeai-api/internal/models"
)

// SampleRoster classifies every active student into exactly one population
// category and returns the resulting snapshot. Students whose camera is off
// or undetected are counted by camera state; the rest are split by the
// attentiveness of their most recent observation, defaulting to inattentive
// when no observation exists yet.
func SampleRoster(students []models.StudentSession, at time.Time) models.GraphMetricSample {
	sample := models.GraphMetricSample{Timestamp: at}

	for i := range students {
		student := &students[i]
		if !student.IsActive {
			continue
		}

		switch student.CameraStatus {
		case models.CameraInactive:
			sample.CameraOffCount++
		case models.CameraNotDetected:
			sample.NotDetectedCount++
		default:
			if last := student.LastRecord(); last != nil && last.IsAttentive {
				sample.AttentiveCount++
			} else {
				sample.InattentiveCount++
			}
		}
	}

	return sample
}
