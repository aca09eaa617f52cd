package detector_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelops/sentinel/internal/detector"
)

// fakeNetwork serves fixed scores and an optional per-subject error.
type fakeNetwork struct {
	subjects []string
	scores   map[string]float64
	fail     map[string]bool
}

func (f *fakeNetwork) Subjects(context.Context) ([]string, error) {
	return f.subjects, nil
}

func (f *fakeNetwork) Sample(_ context.Context, subject string) (float64, error) {
	if f.fail[subject] {
		return 0, errors.New("probe timeout")
	}
	return f.scores[subject], nil
}

type fakeBehavior struct {
	scores map[string]float64
}

func (f *fakeBehavior) Sample(_ context.Context, subject string) (float64, error) {
	score, ok := f.scores[subject]
	if !ok {
		return 0, errors.New("subject not seen in audit logs")
	}
	return score, nil
}

func TestCollect_pairsNetworkAndBehavior(t *testing.T) {
	net := &fakeNetwork{
		subjects: []string{"10.0.0.7", "10.0.0.8"},
		scores:   map[string]float64{"10.0.0.7": 0.95, "10.0.0.8": 0.05},
	}
	beh := &fakeBehavior{scores: map[string]float64{"10.0.0.7": 0.85}}

	c := detector.NewCollector(net, beh, time.Second, zap.NewNop())
	readings := c.Collect(context.Background(), nil)

	sort.Slice(readings, func(i, j int) bool { return readings[i].Subject < readings[j].Subject })
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}

	r7 := readings[0]
	if r7.Network != 0.95 || !r7.BehaviorOK || r7.Behavior != 0.85 {
		t.Errorf("10.0.0.7 reading = %+v", r7)
	}
	r8 := readings[1]
	if r8.Network != 0.05 || r8.BehaviorOK {
		t.Errorf("10.0.0.8 reading = %+v, want no behavior sample", r8)
	}
}

func TestCollect_networkFailureSkipsSubjectOnly(t *testing.T) {
	net := &fakeNetwork{
		subjects: []string{"10.0.0.7", "10.0.0.8"},
		scores:   map[string]float64{"10.0.0.8": 0.6},
		fail:     map[string]bool{"10.0.0.7": true},
	}
	beh := &fakeBehavior{}

	failures := 0
	c := detector.NewCollector(net, beh, time.Second, zap.NewNop())
	readings := c.Collect(context.Background(), func() { failures++ })

	if len(readings) != 1 || readings[0].Subject != "10.0.0.8" {
		t.Fatalf("readings = %+v, want only 10.0.0.8", readings)
	}
	if failures != 1 {
		t.Errorf("failure callback fired %d times, want 1", failures)
	}
}

type failingSubjects struct{}

func (failingSubjects) Subjects(context.Context) ([]string, error) {
	return nil, errors.New("detector unreachable")
}

func (failingSubjects) Sample(context.Context, string) (float64, error) {
	return 0, errors.New("detector unreachable")
}

func TestCollect_subjectEnumerationFailure(t *testing.T) {
	c := detector.NewCollector(failingSubjects{}, &fakeBehavior{}, time.Second, zap.NewNop())

	failures := 0
	readings := c.Collect(context.Background(), func() { failures++ })
	if readings != nil {
		t.Errorf("readings = %+v, want nil", readings)
	}
	if failures != 1 {
		t.Errorf("failure callback fired %d times, want 1", failures)
	}
}
