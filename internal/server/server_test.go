package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oratiohq/oratio/internal/config"
	"github.com/oratiohq/oratio/internal/history"
	"github.com/oratiohq/oratio/internal/interview"
)

type stubTurnService struct{}

func (stubTurnService) StartInterview(context.Context, interview.StartParams) (*interview.Message, error) {
	return &interview.Message{Text: "Welcome. Tell me about yourself."}, nil
}

func (stubTurnService) ContinueInterview(context.Context, interview.ContinueParams) (*interview.Message, error) {
	return &interview.Message{Text: "Why this role?"}, nil
}

func (stubTurnService) GetFeedback(context.Context, []interview.Turn, string) (*interview.FeedbackReport, error) {
	return &interview.FeedbackReport{OverallFeedback: "ok"}, nil
}

func newTestServer(t *testing.T, archive history.Archive) (*Server, *Manager) {
	t.Helper()
	factory := func() (*interview.Session, *AudioHub, error) {
		s, err := interview.NewSession(stubTurnService{},
			interview.WithGraceDelay(time.Millisecond))
		if err != nil {
			return nil, nil, err
		}
		return s, NewAudioHub(), nil
	}
	manager := NewManager(factory, archive, nil, nil)
	t.Cleanup(manager.CloseAll)

	opts := []Option{}
	if archive != nil {
		opts = append(opts, WithArchive(archive))
	}
	srv := New(config.ServerConfig{ListenAddr: ":0"}, manager, opts...)
	return srv, manager
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp["id"]
}

func waitForStage(t *testing.T, m *Manager, id string, want interview.Stage) {
	t.Helper()
	s, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for s.Stage() != want {
		if time.Now().After(deadline) {
			t.Fatalf("stage = %v, want %v", s.Stage(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	h := srv.Routes()

	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status %d", rec.Code)
	}
	var view sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Stage != interview.StageSetup {
		t.Errorf("stage = %v, want setup", view.Stage)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/start",
		`{"job_title":"Backend Engineer","resume_text":"Go since 2018."}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: status %d: %s", rec.Code, rec.Body)
	}
	waitForStage(t, manager, id, interview.StageInterviewing)

	rec = doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/answer",
		`{"text":"I build distributed systems."}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("answer: status %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/sessions/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestStartValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Routes()
	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/start", `{"job_title":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing resume: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/start", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/sessions/unknown/start",
		`{"job_title":"x","resume_text":"y"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", rec.Code)
	}
}

func TestAnswerInWrongStageConflicts(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Routes()
	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/answer", `{"text":"hi"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("answer before start: status %d, want 409", rec.Code)
	}
}

func TestEndWithoutAnswersConflicts(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	h := srv.Routes()
	id := createSession(t, h)

	doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/start",
		`{"job_title":"Backend Engineer","resume_text":"Go since 2018."}`)
	waitForStage(t, manager, id, interview.StageInterviewing)

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/end", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("end without answers: status %d, want 409", rec.Code)
	}
}

func TestBeginAnswerWithoutRecorderNotImplemented(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	h := srv.Routes()
	id := createSession(t, h)

	doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/start",
		`{"job_title":"Backend Engineer","resume_text":"Go since 2018."}`)
	waitForStage(t, manager, id, interview.StageInterviewing)

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/answer/begin", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("begin answer without recorder: status %d, want 501", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	archive := history.NewMemoryArchive()
	_ = archive.Save(context.Background(), history.Record{
		ID:       "rec-1",
		UserID:   "user-1",
		JobTitle: "SRE",
		EndedAt:  time.Now(),
	})

	srv, _ := newTestServer(t, archive)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/history?user_id=user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history list: status %d", rec.Code)
	}
	var records []history.Record
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "rec-1" {
		t.Errorf("records = %+v", records)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("history without user_id: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/history/rec-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("history get: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/history/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("history get missing: status %d, want 404", rec.Code)
	}
}

func TestManagerArchivesCompletedInterview(t *testing.T) {
	archive := history.NewMemoryArchive()
	srv, manager := newTestServer(t, archive)
	h := srv.Routes()
	id := createSession(t, h)

	doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/start",
		`{"user_id":"user-1","job_title":"Backend Engineer","resume_text":"Go since 2018."}`)
	waitForStage(t, manager, id, interview.StageInterviewing)

	doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/answer", `{"text":"answer one"}`)
	s, _ := manager.Get(id)
	deadline := time.Now().Add(3 * time.Second)
	for len(s.Transcript()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("second turn never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
	doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/end", "")
	waitForStage(t, manager, id, interview.StageFeedback)

	deadline = time.Now().Add(3 * time.Second)
	for {
		rec, err := archive.Get(context.Background(), id)
		if err == nil {
			if rec.UserID != "user-1" || rec.JobTitle != "Backend Engineer" || rec.Report == nil {
				t.Errorf("archived record = %+v", rec)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("interview never archived")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
