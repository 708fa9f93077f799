package interview_test

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/oratiohq/oratio/internal/interview"
	"github.com/oratiohq/oratio/internal/observe"
	"github.com/oratiohq/oratio/internal/trial"
)

// counterTotal sums all data points of a named int64 counter.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestSession_RecordsTurnAndTrialMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	svc := &scriptedService{
		startMsg: &interview.Message{Text: "Welcome."},
		nextMsgs: []*interview.Message{{Text: "Thanks, wrapping up.", Final: true}},
		report:   &interview.FeedbackReport{OverallFeedback: "ok"},
	}
	gate := trial.NewMemoryGate()

	s, err := interview.NewSession(svc,
		interview.WithTrialGate(gate),
		interview.WithMetrics(m),
		interview.WithGraceDelay(time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	p := validParams()
	p.UserID = "user-9"
	if err := s.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "never reached interviewing")
	if err := s.SubmitAnswer("I build voice systems."); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageFeedback }, "never reached feedback")

	// Opening, continuation, and feedback round trips.
	if got := counterTotal(t, reader, "oratio.turns"); got != 3 {
		t.Errorf("oratio.turns = %d, want 3", got)
	}

	// The trial write lands asynchronously after the report.
	waitFor(t, func() bool {
		return counterTotal(t, reader, "oratio.trials.recorded") == 1
	}, "trial usage never counted")
}
