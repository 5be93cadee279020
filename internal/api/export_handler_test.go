package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/smartcut/internal/catalog"
	"github.com/heimdex/smartcut/internal/export"
	"github.com/heimdex/smartcut/internal/session"
)

func (f *apiFixture) startExport(t *testing.T, sessionID string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/sessions/"+sessionID+"/exports", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("start export status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp StartExportResponse
	decodeInto(t, rr, &resp)
	return resp.JobID
}

func (f *apiFixture) waitExport(t *testing.T, jobID string) {
	t.Helper()
	job, ok := f.cfg.Exports.Get(jobID)
	if !ok {
		t.Fatalf("job %s not registered", jobID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-job.Done():
	case <-ctx.Done():
		t.Fatal("export did not finish")
	}
}

func TestExport_CompletesWithArtifact(t *testing.T) {
	f := newFixture(t)
	id := f.load(t)
	at := 2.0
	f.do(t, http.MethodPost, "/sessions/"+id+"/segments", AddSegmentRequest{CurrentTime: &at})

	jobID := f.startExport(t, id)
	f.waitExport(t, jobID)

	rr := f.do(t, http.MethodGet, "/exports/"+jobID, nil)
	var st export.JobStatus
	decodeInto(t, rr, &st)
	if st.Status != export.JobStatusCompleted || st.Progress != 100 {
		t.Fatalf("job status = %+v", st)
	}
	if st.Duration != 5 {
		t.Errorf("artifact duration = %v, want 5", st.Duration)
	}

	rr = f.do(t, http.MethodGet, "/exports/"+jobID+"/artifact", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("artifact status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "video/webm" {
		t.Errorf("Content-Type = %q, want video/webm", got)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "smartcut-export-") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if rr.Body.String() != "webm-artifact" {
		t.Errorf("body = %q", rr.Body.String())
	}

	// The session is handed back paused at the start.
	rr = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	var view session.View
	decodeInto(t, rr, &view)
	if view.ExportActive || view.Player.Playing || view.Player.Position != 0 {
		t.Errorf("session after export = %+v", view.Player)
	}

	job, err := f.repo.GetJob(context.Background(), jobID)
	if err != nil || job == nil {
		t.Fatalf("export history missing: %v", err)
	}
	if job.Type != catalog.JobTypeExport || job.Status != catalog.JobStatusCompleted || job.Progress != 100 {
		t.Errorf("persisted job = %+v", job)
	}
}

func TestExport_OnePerSource(t *testing.T) {
	f := newFixture(t)
	f.backend.gate = make(chan struct{})
	id := f.load(t)

	jobID := f.startExport(t, id)

	rr := f.do(t, http.MethodPost, "/sessions/"+id+"/exports", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("second export status = %d, want 409", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/exports/"+jobID+"/artifact", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("pending artifact status = %d, want 409", rr.Code)
	}

	rr = f.do(t, http.MethodDelete, "/sessions/"+id, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("closing an exporting session status = %d, want 409", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/sessions/"+id+"/position", PositionRequest{Position: 4, Playing: true})
	body := decodeJSONBody(t, rr)
	if body["action"] != "none" {
		t.Errorf("playback must not act during export, got %v", body)
	}

	rr = f.do(t, http.MethodGet, "/status", nil)
	var status StatusResponse
	decodeInto(t, rr, &status)
	if status.State != "exporting" || len(status.ActiveExports) != 1 {
		t.Errorf("status = %+v", status)
	}

	close(f.backend.gate)
	f.waitExport(t, jobID)
}

func TestExport_Cancel(t *testing.T) {
	f := newFixture(t)
	f.backend.gate = make(chan struct{})
	id := f.load(t)

	jobID := f.startExport(t, id)

	rr := f.do(t, http.MethodDelete, "/exports/"+jobID, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rr.Code)
	}
	f.waitExport(t, jobID)

	rr = f.do(t, http.MethodGet, "/exports/"+jobID, nil)
	var st export.JobStatus
	decodeInto(t, rr, &st)
	if st.Status != export.JobStatusCanceled {
		t.Errorf("status = %s, want canceled", st.Status)
	}

	rr = f.do(t, http.MethodGet, "/exports/"+jobID+"/artifact", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("canceled artifact status = %d, want 409", rr.Code)
	}

	rr = f.do(t, http.MethodDelete, "/exports/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("cancel missing status = %d, want 404", rr.Code)
	}

	// The source is free again.
	second := f.startExport(t, id)
	close(f.backend.gate)
	f.waitExport(t, second)
}

func TestExport_UnknownJob(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/exports/nope", "/exports/nope/artifact"} {
		rr := f.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rr.Code)
		}
	}
}

func TestEDL_WritesCutList(t *testing.T) {
	f := newFixture(t)
	id := f.load(t)
	for _, at := range []float64{12, 1} {
		at := at
		f.do(t, http.MethodPost, "/sessions/"+id+"/segments", AddSegmentRequest{CurrentTime: &at})
	}

	outDir := t.TempDir()
	rr := f.do(t, http.MethodPost, "/sessions/"+id+"/edl", export.EDLRequest{
		ProjectName: "Talk Cut",
		FrameRate:   25,
		OutputDir:   outDir,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp export.EDLResponse
	decodeInto(t, rr, &resp)
	if resp.EventCount != 2 || resp.OutputPath != filepath.Join(outDir, "Talk Cut.edl") {
		t.Errorf("response = %+v", resp)
	}

	content, err := os.ReadFile(resp.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)
	if !strings.Contains(text, "TITLE: Talk Cut") {
		t.Errorf("EDL missing title:\n%s", text)
	}
	// First event is the earlier segment, 1s to 6s at 25fps.
	if !strings.Contains(text, "00:00:01:00 00:00:06:00 00:00:00:00 00:00:05:00") {
		t.Errorf("EDL events not in timeline order:\n%s", text)
	}
}

func TestEDL_DefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	id := f.load(t)

	rr := f.do(t, http.MethodPost, "/sessions/"+id+"/edl", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp export.EDLResponse
	decodeInto(t, rr, &resp)
	if filepath.Dir(resp.OutputPath) != f.cfg.ExportDir || filepath.Base(resp.OutputPath) != "talk.edl" {
		t.Errorf("default output = %s", resp.OutputPath)
	}
	if resp.EventCount != 1 {
		t.Errorf("empty set should export the whole source as one event, got %d", resp.EventCount)
	}

	tests := []struct {
		name string
		dir  string
	}{
		{"traversal", "/tmp/../etc"},
		{"missing dir", filepath.Join(t.TempDir(), "nope")},
		{"unclean", t.TempDir() + "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/sessions/"+id+"/edl", export.EDLRequest{OutputDir: tt.dir})
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}
