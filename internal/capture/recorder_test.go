package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oratiohq/oratio/internal/capture"
	"github.com/oratiohq/oratio/pkg/provider/stt"
	sttmock "github.com/oratiohq/oratio/pkg/provider/stt/mock"
	"github.com/oratiohq/oratio/pkg/types"
)

func newMockProvider() *sttmock.Provider {
	return &sttmock.Provider{Handle: sttmock.NewHandle()}
}

func TestRecorder_NilProviderUnsupported(t *testing.T) {
	t.Parallel()

	_, err := capture.NewRecorder(nil)
	if !errors.Is(err, capture.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
	if !errors.Is(err, stt.ErrUnsupported) {
		t.Error("ErrUnsupported must wrap the provider sentinel")
	}
}

func TestRecorder_StartUnsupportedProvider(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{StartErr: stt.ErrUnsupported}
	r, err := capture.NewRecorder(p)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	_, err = r.Start(context.Background(), stt.StreamConfig{})
	if !errors.Is(err, capture.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestCapture_FinalIsTerminal(t *testing.T) {
	t.Parallel()

	p := newMockProvider()
	r, err := capture.NewRecorder(p)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	c, err := r.Start(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.Handle.EmitPartial(types.Transcript{Text: "I led a"})
	p.Handle.EmitFinal(types.Transcript{Text: "I led a platform migration.", IsFinal: true})

	select {
	case res := <-c.Done():
		if res.Err != nil {
			t.Fatalf("terminal error: %v", res.Err)
		}
		if res.Utterance.Text != "I led a platform migration." {
			t.Errorf("utterance=%q", res.Utterance.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal result")
	}

	// The in-flight slot must be released so a new capture can start.
	deadline := time.Now().Add(time.Second)
	for {
		c2, err := r.Start(context.Background(), stt.StreamConfig{})
		if err == nil {
			c2.Stop()
			break
		}
		if !errors.Is(err, capture.ErrActive) {
			t.Fatalf("restart: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("slot never released after terminal result")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCapture_SecondStartWhileActive(t *testing.T) {
	t.Parallel()

	r, err := capture.NewRecorder(newMockProvider())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	c, err := r.Start(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if _, err := r.Start(context.Background(), stt.StreamConfig{}); !errors.Is(err, capture.ErrActive) {
		t.Fatalf("got %v, want ErrActive", err)
	}
}

func TestCapture_StopEmitsNothing(t *testing.T) {
	t.Parallel()

	p := newMockProvider()
	r, err := capture.NewRecorder(p)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	c, err := r.Start(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()

	select {
	case res, ok := <-c.Done():
		if ok {
			t.Fatalf("stopped capture emitted terminal result: %+v", res)
		}
	case <-time.After(300 * time.Millisecond):
		// No terminal event: expected.
	}

	if p.Handle.CloseCalls() == 0 {
		t.Error("stream was not closed on Stop")
	}
}

func TestCapture_StreamErrorIsTerminal(t *testing.T) {
	t.Parallel()

	p := newMockProvider()
	r, err := capture.NewRecorder(p)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	c, err := r.Start(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Simulate the stream dying without a final.
	_ = p.Handle.Close()

	select {
	case res := <-c.Done():
		if res.Err == nil {
			t.Fatal("expected terminal error from dead stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal result")
	}
}

func TestCapture_Ticks(t *testing.T) {
	t.Parallel()

	r, err := capture.NewRecorder(newMockProvider(), capture.WithTickInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	c, err := r.Start(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	select {
	case <-c.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no elapsed tick")
	}
}
