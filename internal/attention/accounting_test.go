package attention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eyeai-api/internal/models"
)

func record(direction models.Direction, at time.Time) models.AttentionRecord {
	return models.AttentionRecord{
		Direction:   direction,
		IsAttentive: direction.Attentive(),
		Timestamp:   at,
	}
}

func TestComputeEmptyHistory(t *testing.T) {
	metrics := Compute(nil, time.Now(), Carry{})
	require.Zero(t, metrics.AttentiveTime)
	require.Zero(t, metrics.SessionTime)
	require.Zero(t, metrics.Percentage)
}

func TestComputeSingleOpenInterval(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []models.AttentionRecord{record(models.DirectionCenter, start)}

	metrics := Compute(records, start.Add(30*time.Second), Carry{})
	require.Equal(t, 30*time.Second, metrics.AttentiveTime)
	require.Equal(t, 30*time.Second, metrics.SessionTime)
	require.InDelta(t, 100.0, metrics.Percentage, 0.001)
}

func TestComputeAlternatingDirections(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []models.AttentionRecord{
		record(models.DirectionCenter, start),
		record(models.DirectionLeft, start.Add(10*time.Second)),
		record(models.DirectionCenter, start.Add(25*time.Second)),
	}

	// 10s attentive, 15s away, then 5s attentive until the reference instant.
	metrics := Compute(records, start.Add(30*time.Second), Carry{})
	require.Equal(t, 15*time.Second, metrics.AttentiveTime)
	require.Equal(t, 30*time.Second, metrics.SessionTime)
	require.InDelta(t, 50.0, metrics.Percentage, 0.001)
}

func TestComputeIsIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []models.AttentionRecord{
		record(models.DirectionCenter, start),
		record(models.DirectionDown, start.Add(20*time.Second)),
	}
	asOf := start.Add(45 * time.Second)

	first := Compute(records, asOf, Carry{})
	second := Compute(records, asOf, Carry{})
	require.Equal(t, first, second)
}

func TestComputeToleratesUnorderedRecords(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ordered := []models.AttentionRecord{
		record(models.DirectionCenter, start),
		record(models.DirectionLeft, start.Add(10*time.Second)),
		record(models.DirectionCenter, start.Add(20*time.Second)),
	}
	shuffled := []models.AttentionRecord{ordered[2], ordered[0], ordered[1]}
	asOf := start.Add(30 * time.Second)

	require.Equal(t, Compute(ordered, asOf, Carry{}), Compute(shuffled, asOf, Carry{}))
}

func TestComputeClampsClockSkew(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []models.AttentionRecord{record(models.DirectionCenter, start)}

	// Reference instant behind the only record: no negative contributions.
	metrics := Compute(records, start.Add(-5*time.Second), Carry{})
	require.Zero(t, metrics.AttentiveTime)
	require.Zero(t, metrics.SessionTime)
	require.Zero(t, metrics.Percentage)
}

func TestComputeFoldsCarriedTotals(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []models.AttentionRecord{record(models.DirectionLeft, start)}
	carry := Carry{AttentiveTime: 40 * time.Second, ElapsedTime: 60 * time.Second}

	metrics := Compute(records, start.Add(20*time.Second), carry)
	require.Equal(t, 40*time.Second, metrics.AttentiveTime)
	require.Equal(t, 80*time.Second, metrics.SessionTime)
	require.InDelta(t, 50.0, metrics.Percentage, 0.001)
}

func TestComputeCarryOnlyHistory(t *testing.T) {
	carry := Carry{AttentiveTime: 30 * time.Second, ElapsedTime: 120 * time.Second}
	metrics := Compute(nil, time.Now(), carry)
	require.Equal(t, 30*time.Second, metrics.AttentiveTime)
	require.Equal(t, 120*time.Second, metrics.SessionTime)
	require.InDelta(t, 25.0, metrics.Percentage, 0.001)
}

func TestComputeBoundsHold(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	directions := []models.Direction{
		models.DirectionCenter, models.DirectionLeft, models.DirectionRight,
		models.DirectionUp, models.DirectionDown, models.DirectionCenter,
	}

	records := make([]models.AttentionRecord, 0, len(directions))
	for i, direction := range directions {
		records = append(records, record(direction, start.Add(time.Duration(i*7)*time.Second)))
	}

	for _, offset := range []time.Duration{0, time.Second, time.Minute, time.Hour} {
		metrics := Compute(records, start.Add(offset), Carry{})
		require.LessOrEqual(t, metrics.AttentiveTime, metrics.SessionTime)
		require.GreaterOrEqual(t, metrics.Percentage, 0.0)
		require.LessOrEqual(t, metrics.Percentage, 100.0)
	}
}
