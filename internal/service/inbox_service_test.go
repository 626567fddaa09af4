package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yuqie6/VirtualSelf/internal/collector"
	"github.com/yuqie6/VirtualSelf/internal/schema"
)

type fakeInboxSource struct {
	events chan *collector.InboxItem
	mu     sync.Mutex
	done   []string
}

func newFakeInboxSource() *fakeInboxSource {
	return &fakeInboxSource{events: make(chan *collector.InboxItem, 4)}
}

func (f *fakeInboxSource) Start(ctx context.Context) error     { return nil }
func (f *fakeInboxSource) Stop() error                         { return nil }
func (f *fakeInboxSource) Events() <-chan *collector.InboxItem { return f.events }
func (f *fakeInboxSource) MarkDone(item *collector.InboxItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, item.Name)
	return nil
}

func (f *fakeInboxSource) doneNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.done...)
}

type scriptedIngester struct {
	mu      sync.Mutex
	calls   int
	results []error
}

func (s *scriptedIngester) IngestRawInput(ctx context.Context, input string) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	var err error
	if idx < len(s.results) {
		err = s.results[idx]
	}
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrNothingExtracted) {
		return nil, err
	}
	return &IngestResult{Entries: []schema.ExperienceEntry{{ID: "e", Content: input}}}, err
}

func TestInboxServiceIngestsAndArchives(t *testing.T) {
	src := newFakeInboxSource()
	ing := &scriptedIngester{results: []error{ErrBusy, nil, ErrNothingExtracted}}
	svc := NewInboxService(src, ing)
	svc.busyDelay = time.Millisecond

	ingested := make(chan string, 4)
	failed := make(chan error, 4)
	svc.SetOnIngested(func(item *collector.InboxItem, res *IngestResult) { ingested <- item.Name })
	svc.SetOnFailed(func(item *collector.InboxItem, err error) { failed <- err })

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer svc.Stop()

	src.events <- &collector.InboxItem{Name: "a.txt", Text: "跑步"}
	select {
	case name := <-ingested:
		if name != "a.txt" {
			t.Fatalf("ingested=%s", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ingestion")
	}

	src.events <- &collector.InboxItem{Name: "b.txt", Text: "嗯"}
	select {
	case err := <-failed:
		if !errors.Is(err, ErrNothingExtracted) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for failure")
	}

	if got := src.doneNames(); len(got) != 1 || got[0] != "a.txt" {
		t.Fatalf("archived=%v", got)
	}
}

func TestInboxServiceArchivesWhenProfileUpdateFails(t *testing.T) {
	src := newFakeInboxSource()
	ing := &scriptedIngester{results: []error{errors.New("profile update failed")}}
	svc := NewInboxService(src, ing)

	failed := make(chan error, 1)
	svc.SetOnFailed(func(item *collector.InboxItem, err error) { failed <- err })
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer svc.Stop()

	src.events <- &collector.InboxItem{Name: "c.md", Text: "今天升职了"}
	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for failure callback")
	}
	if got := src.doneNames(); len(got) != 1 || got[0] != "c.md" {
		t.Fatalf("archived=%v", got)
	}
}
