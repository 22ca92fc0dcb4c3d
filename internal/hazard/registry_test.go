package hazard

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-engine/internal/model"
)

func testIssue(id string, lat, lng float64) *model.Issue {
	return &model.Issue{
		ID:        id,
		Lat:       lat,
		Lng:       lng,
		Category:  "pothole",
		Status:    model.IssueStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
}

func testAssessment(id string, score float64, level model.RiskLevel) *model.Assessment {
	return &model.Assessment{
		IssueID:       id,
		Score:         score,
		Level:         level,
		ImpactRadiusM: 50,
		AssessedAt:    time.Now().UTC(),
	}
}

func TestRegistry_UpsertAboveThreshold(t *testing.T) {
	t.Parallel()

	r := NewRegistry(DefaultConfig())

	h := r.Upsert(testIssue("a", 40.70, -74.00), testAssessment("a", 0.7, model.RiskLevelHigh))
	require.NotNil(t, h)
	assert.Equal(t, "a", h.ID)
	assert.Equal(t, 1, r.Count())

	// Below the blocking level: no hazard.
	assert.Nil(t, r.Upsert(testIssue("b", 40.70, -74.00), testAssessment("b", 0.4, model.RiskLevelMedium)))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_DowngradeRemovesHazard(t *testing.T) {
	t.Parallel()

	r := NewRegistry(DefaultConfig())
	require.NotNil(t, r.Upsert(testIssue("a", 40.70, -74.00), testAssessment("a", 0.9, model.RiskLevelCritical)))

	// Recompute drops below threshold: hazard goes away.
	assert.Nil(t, r.Upsert(testIssue("a", 40.70, -74.00), testAssessment("a", 0.3, model.RiskLevelMedium)))
	assert.Zero(t, r.Count())
}

func TestRegistry_ClosedIssueRemovesHazard(t *testing.T) {
	t.Parallel()

	r := NewRegistry(DefaultConfig())
	require.NotNil(t, r.Upsert(testIssue("a", 40.70, -74.00), testAssessment("a", 0.9, model.RiskLevelCritical)))

	closed := testIssue("a", 40.70, -74.00)
	closed.Status = model.IssueStatusClosed
	assert.Nil(t, r.Upsert(closed, testAssessment("a", 0.9, model.RiskLevelCritical)))
	assert.Zero(t, r.Count())
}

func TestRegistry_ExpireStale(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Expiry = time.Hour
	r := NewRegistry(cfg)

	require.NotNil(t, r.Upsert(testIssue("a", 40.70, -74.00), testAssessment("a", 0.9, model.RiskLevelCritical)))
	require.NotNil(t, r.Upsert(testIssue("b", 40.71, -74.01), testAssessment("b", 0.9, model.RiskLevelCritical)))

	assert.Zero(t, r.ExpireStale(time.Now().UTC()))
	assert.Equal(t, 2, r.ExpireStale(time.Now().UTC().Add(2*time.Hour)))
	assert.Zero(t, r.Count())
}

func TestRegistry_Near(t *testing.T) {
	t.Parallel()

	r := NewRegistry(DefaultConfig())
	require.NotNil(t, r.Upsert(testIssue("near", 40.700, -74.000), testAssessment("near", 0.9, model.RiskLevelCritical)))
	require.NotNil(t, r.Upsert(testIssue("far", 40.800, -74.000), testAssessment("far", 0.9, model.RiskLevelCritical)))

	hits := r.Near(40.7005, -74.000, 500)
	require.Len(t, hits, 1)
	assert.Equal(t, "near", hits[0].ID)

	assert.Empty(t, r.Near(40.60, -74.00, 100))
}

func TestRegistry_ConcurrentReadsDuringWrites(t *testing.T) {
	t.Parallel()

	r := NewRegistry(DefaultConfig())

	var writers, readers sync.WaitGroup
	stop := make(chan struct{})

	// Writers: upsert and remove continuously.
	for w := 0; w < 4; w++ {
		writers.Add(1)
		go func(w int) {
			defer writers.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i%10)
				r.Upsert(testIssue(id, 40.70, -74.00), testAssessment(id, 0.9, model.RiskLevelCritical))
				if i%3 == 0 {
					r.Remove(id)
				}
			}
		}(w)
	}

	// Readers: every snapshot must be internally consistent (no panics,
	// no partially-written hazards).
	for rd := 0; rd < 4; rd++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, h := range r.Near(40.70, -74.00, 1000) {
					assert.NotEmpty(t, h.ID)
					assert.False(t, h.CreatedAt.IsZero())
				}
			}
		}()
	}

	writers.Wait()
	close(stop)
	readers.Wait()
}

func TestRegistry_RecomputeKeepsCreationTime(t *testing.T) {
	t.Parallel()

	r := NewRegistry(DefaultConfig())
	first := r.Upsert(testIssue("a", 40.70, -74.00), testAssessment("a", 0.85, model.RiskLevelCritical))
	require.NotNil(t, first)

	later := testAssessment("a", 0.95, model.RiskLevelCritical)
	later.AssessedAt = first.CreatedAt.Add(time.Hour)
	second := r.Upsert(testIssue("a", 40.70, -74.00), later)
	require.NotNil(t, second)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 0.95, second.Weight)
}
