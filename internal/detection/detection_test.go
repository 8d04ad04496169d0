package detection

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mustBuild(t *testing.T, scores []float32, from, to time.Time) Result {
	t.Helper()
	r, err := Build(scores, from, to)
	require.NoError(t, err)
	return r
}

func uniform(winner int, conf float32) []float32 {
	s := []float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	s[winner] = conf
	return s
}

func TestEventTypes(t *testing.T) {
	t.Parallel()

	types := EventTypes()
	require.Len(t, types, NumEventTypes)
	names := make([]string, len(types))
	for i, e := range types {
		names[i] = e.String()
	}
	assert.Equal(t, []string{"COUGH", "SNEEZE", "NOSE_BLOWING", "SCREAM", "PANT", "MOAN", "OTHERS"}, names)

	for _, in := range []string{"nose_blowing", "Nose-Blowing", " NOSE BLOWING "} {
		e, err := ParseEventType(in)
		require.NoError(t, err, in)
		assert.Equal(t, NoseBlowing, e)
	}
	_, err := ParseEventType("laugh")
	require.Error(t, err)

	assert.Equal(t, "EventType(9)", EventType(9).String())
	assert.False(t, EventType(-1).Valid())
}

func TestBuildTieBreakFirstMaximum(t *testing.T) {
	t.Parallel()

	r := mustBuild(t, []float32{0.5, 0.5, 0.1, 0.1, 0.1, 0.1, 0.1}, t0, t0.Add(3*time.Second))
	assert.Equal(t, Cough, r.Label)
	assert.InDelta(t, 0.5, r.Confidence, 1e-6)

	r = mustBuild(t, []float32{0.1, 0.2, 0.7, 0.1, 0.7, 0.7, 0.1}, t0, t0)
	assert.Equal(t, NoseBlowing, r.Label)
}

func TestBuildScoresMap(t *testing.T) {
	t.Parallel()

	scores := []float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.9}
	r := mustBuild(t, scores, t0, t0.Add(3*time.Second))

	assert.Equal(t, Others, r.Label)
	assert.InDelta(t, 0.9, r.Confidence, 1e-6)
	assert.Equal(t, 3*time.Second, r.Duration())
	assert.NotEmpty(t, r.ID)

	m := r.Scores()
	require.Len(t, m, NumEventTypes)
	for i, s := range scores {
		assert.Equal(t, s, m[EventType(i)])
	}

	m[Others] = 0
	assert.InDelta(t, 0.9, r.Score(Others), 1e-6, "Scores returns a copy")
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := Build([]float32{0.1, 0.2}, t0, t0)
	require.Error(t, err)

	_, err = Build(make([]float32, 8), t0, t0)
	require.Error(t, err)

	_, err = Build(make([]float32, 7), t0, t0.Add(-time.Second))
	require.Error(t, err)

	assert.True(t, ValidScores(make([]float32, 7)))
	assert.True(t, ValidScores(make([]float32, 14)))
	assert.False(t, ValidScores(make([]float32, 6)))
}

func TestResultJSON(t *testing.T) {
	t.Parallel()

	r := mustBuild(t, uniform(3, 0.8), t0, t0.Add(3*time.Second)).WithSourceID("mic")
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"label":"SCREAM"`)
	assert.Contains(t, string(data), `"SCREAM":0.8`)
	assert.Contains(t, string(data), `"source_id":"mic"`)

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.ID, decoded.ID)
	assert.Equal(t, Scream, decoded.Label)
	assert.Equal(t, r.Scores(), decoded.Scores())
	assert.True(t, r.To.Equal(decoded.To))
}

func TestStoreQueryExclusiveBounds(t *testing.T) {
	t.Parallel()

	t1 := t0.Add(3 * time.Second)
	s := NewStore()
	s.Append(mustBuild(t, uniform(0, 0.9), t0, t1))

	at := func(tm time.Time) *time.Time { return &tm }

	assert.Len(t, s.Query(nil, nil), 1)
	assert.Empty(t, s.Query(nil, at(t1)), "to bound is exclusive")
	assert.Len(t, s.Query(nil, at(t1.Add(time.Nanosecond))), 1)
	assert.Empty(t, s.Query(at(t0), nil), "from bound is exclusive")
	assert.Len(t, s.Query(at(t0.Add(-time.Nanosecond)), nil), 1)
	assert.Len(t, s.Query(at(t0.Add(-time.Second)), at(t1.Add(time.Second))), 1)
}

func TestStoreQueryOrderAndCopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	for i := range 5 {
		from := t0.Add(time.Duration(i) * time.Second)
		s.Append(mustBuild(t, uniform(i%NumEventTypes, 0.5), from, from.Add(3*time.Second)))
	}

	got := s.Query(nil, nil)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].From.After(got[i-1].From))
	}

	got[0] = Result{}
	assert.NotEmpty(t, s.Query(nil, nil)[0].ID, "query result is a copy")

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, got[4].ID, latest.ID)
	assert.Equal(t, 5, s.Len())
}

func TestStoreClearIdempotent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Clear()
	s.Append(mustBuild(t, uniform(1, 0.9), t0, t0.Add(time.Second)))
	s.Clear()
	assert.Empty(t, s.Query(nil, nil))
	s.Clear()
	assert.Empty(t, s.Query(nil, nil))
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestStoreMaxResults(t *testing.T) {
	t.Parallel()

	s := NewStore(WithMaxResults(3))
	var ids []string
	for i := range 5 {
		r := mustBuild(t, uniform(0, 0.9), t0.Add(time.Duration(i)*time.Second), t0.Add(time.Duration(i+3)*time.Second))
		ids = append(ids, r.ID)
		s.Append(r)
	}

	got := s.Query(nil, nil)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2:], []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestStoreConcurrentAppendAndQuery(t *testing.T) {
	t.Parallel()

	s := NewStore()
	r := mustBuild(t, uniform(0, 0.9), t0, t0.Add(3*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for range 1000 {
			s.Append(r)
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			for _, got := range s.Query(nil, nil) {
				assert.Equal(t, r.ID, got.ID)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			s.Clear()
		}
	}()
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 1000)
}

func TestFilterByConfidence(t *testing.T) {
	t.Parallel()

	in := []Result{
		mustBuild(t, uniform(0, 0.9), t0, t0),
		mustBuild(t, uniform(1, 0.5), t0, t0),
		mustBuild(t, uniform(2, 0.75), t0, t0),
	}

	out := FilterByConfidence(in, 0.7)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-6)
	assert.InDelta(t, 0.75, out[1].Confidence, 1e-6)
	assert.Len(t, in, 3, "input untouched")

	assert.Len(t, FilterByConfidence(in, 0.9), 1, "threshold is inclusive")
	assert.Empty(t, FilterByConfidence(nil, 0.1))

	assert.Len(t, FilterByLabel(in, Cough, NoseBlowing), 2)
}
