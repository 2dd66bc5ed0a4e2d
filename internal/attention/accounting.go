// Package attention contains the pure accounting and aggregation routines of
// the attention engine. Nothing here touches storage or the network, so every
// function is safe to call repeatedly with the same inputs.
package attention

import (
	"sort"
	"time"

	"github.com/noah-isme/eyeai-api/internal/models"
)

// Metrics is the derived attentiveness state of a single student.
type Metrics struct {
	AttentiveTime time.Duration
	SessionTime   time.Duration
	Percentage    float64
}

// Carry holds totals folded in from attention records that were trimmed out
// of a capped history. A zero Carry means the record list is complete.
type Carry struct {
	AttentiveTime time.Duration
	ElapsedTime   time.Duration
}

// Compute walks a student's observation history and derives total attentive
// time, total session time and the attention percentage as of the given
// instant. Each interval between two adjacent records is attributed to the
// earlier record's state; the open interval after the last record runs until
// asOf. Intervals never contribute negative time, so a reference instant
// behind the last record (clock skew) degrades to zero rather than
// corrupting the totals.
//
// The records must be ordered by timestamp. They are sorted defensively
// anyway so that a recomputation stays idempotent even if the caller's copy
// was reordered.
func Compute(records []models.AttentionRecord, asOf time.Time, carry Carry) Metrics {
	if len(records) == 0 {
		return withPercentage(Metrics{
			AttentiveTime: carry.AttentiveTime,
			SessionTime:   carry.ElapsedTime,
		})
	}

	ordered := records
	if !sort.SliceIsSorted(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	}) {
		ordered = make([]models.AttentionRecord, len(records))
		copy(ordered, records)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		})
	}

	var attentive time.Duration
	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i].IsAttentive {
			attentive += clampDuration(ordered[i+1].Timestamp.Sub(ordered[i].Timestamp))
		}
	}

	last := ordered[len(ordered)-1]
	if last.IsAttentive {
		attentive += clampDuration(asOf.Sub(last.Timestamp))
	}

	session := clampDuration(asOf.Sub(ordered[0].Timestamp))
	if attentive > session {
		attentive = session
	}

	return withPercentage(Metrics{
		AttentiveTime: carry.AttentiveTime + attentive,
		SessionTime:   carry.ElapsedTime + session,
	})
}

func withPercentage(m Metrics) Metrics {
	if m.SessionTime <= 0 {
		m.Percentage = 0
		return m
	}

	m.Percentage = 100 * float64(m.AttentiveTime) / float64(m.SessionTime)
	if m.Percentage < 0 {
		m.Percentage = 0
	}
	if m.Percentage > 100 {
		m.Percentage = 100
	}
	return m
}

func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
