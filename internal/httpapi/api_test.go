package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yuqie6/VirtualSelf/internal/bootstrap"
	"github.com/yuqie6/VirtualSelf/internal/dto"
	"github.com/yuqie6/VirtualSelf/internal/schema"
)

func newTestCore(t *testing.T) *bootstrap.Core {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "storage:\n  db_path: state.db\nmemory:\n  enabled: false\napp:\n  log_level: error\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	core, err := bootstrap.NewCore(bootstrap.Options{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("NewCore error: %v", err)
	}
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusOnEmptyStore(t *testing.T) {
	h := NewHandler(newTestCore(t))

	rec := doJSON(t, h, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var st dto.StatusDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Counts.Entries != 0 || st.Counts.HasProfile || st.AI.Configured || st.AI.MemoryEnabled {
		t.Fatalf("status=%+v", st)
	}
	if len(st.Busy) != 5 {
		t.Fatalf("busy=%v", st.Busy)
	}
}

func TestAnswerListDeleteEntry(t *testing.T) {
	h := NewHandler(newTestCore(t))

	rec := doJSON(t, h, http.MethodPost, "/api/questions/q2/answer", `{"answer":"写代码的时候"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer status=%d body=%s", rec.Code, rec.Body.String())
	}
	var entry schema.ExperienceEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Category != schema.CategoryJoy || entry.ID == "" {
		t.Fatalf("entry=%+v", entry)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/entries?category=joy", "")
	var list []schema.ExperienceEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list=%+v", list)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/entries?category=CAREER", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("filtered body=%s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/entries/"+entry.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/api/entries/"+entry.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	h := NewHandler(newTestCore(t))

	cases := []struct {
		method, path, body string
		want               int
		kind               string
	}{
		{http.MethodPost, "/api/entries", `{"text":"今天很开心"}`, http.StatusPreconditionFailed, "no_profile"},
		{http.MethodPost, "/api/entries", `{"text":"   "}`, http.StatusBadRequest, "invalid_input"},
		{http.MethodPost, "/api/questions/q9/answer", `{"answer":"x"}`, http.StatusNotFound, "not_found"},
		{http.MethodPost, "/api/tasks/nope/toggle", ``, http.StatusNotFound, "not_found"},
		{http.MethodGet, "/api/profile", ``, http.StatusPreconditionFailed, "no_profile"},
		{http.MethodPost, "/api/plan", ``, http.StatusPreconditionFailed, "no_profile"},
		{http.MethodPost, "/api/weekly", ``, http.StatusUnprocessableEntity, "not_enough_entries"},
		{http.MethodPost, "/api/talk", `{"message":""}`, http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		rec := doJSON(t, h, tc.method, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s %s status=%d want %d body=%s", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
		}
		var e dto.ErrorDTO
		if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if e.Kind != tc.kind || e.Error == "" {
			t.Fatalf("%s %s error=%+v", tc.method, tc.path, e)
		}
	}

	rec := doJSON(t, h, http.MethodPost, "/api/entries", `{"txt":"typo"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status=%d", rec.Code)
	}
}

func TestTasksGroupedEmpty(t *testing.T) {
	h := NewHandler(newTestCore(t))
	rec := doJSON(t, h, http.MethodGet, "/api/tasks", "")
	var groups dto.TaskGroupsDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if groups.Today == "" || groups.Daily == nil || len(groups.Daily) != 0 {
		t.Fatalf("groups=%+v", groups)
	}
}

func TestEventsStream(t *testing.T) {
	core := newTestCore(t)
	srv := httptest.NewServer(NewHandler(core))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%s", ct)
	}

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func() string {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed")
			}
			return l
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out reading stream")
		}
		return ""
	}

	if l := next(); l != "event: ready" {
		t.Fatalf("first line=%q", l)
	}
	_ = next() // data: {}
	_ = next() // blank

	core.Hub.Notice("plan", "额度用尽")
	if l := next(); l != "event: notice" {
		t.Fatalf("event line=%q", l)
	}
	if l := next(); !strings.Contains(l, "额度用尽") {
		t.Fatalf("data line=%q", l)
	}
}
