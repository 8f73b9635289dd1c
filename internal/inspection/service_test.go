package inspection_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/inspectra/inspectra/internal/attachments"
	"github.com/inspectra/inspectra/internal/inspection"
	"github.com/inspectra/inspectra/pkg/grading"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]*inspection.Record
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*inspection.Record{}}
}

func (m *memStore) Create(_ context.Context, rec *inspection.Record) (*inspection.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "create" {
		return nil, errors.New("disk full")
	}
	m.seq++
	cp := *rec
	cp.ID = fmt.Sprintf("insp-%d", m.seq)
	cp.CreatedDate = time.Unix(int64(m.seq), 0)
	cp.UpdatedDate = cp.CreatedDate
	m.records[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) Replace(_ context.Context, id string, rec *inspection.Record) (*inspection.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "replace" {
		return nil, errors.New("disk full")
	}
	prev, ok := m.records[id]
	if !ok {
		return nil, inspection.ErrNotFound
	}
	cp := *rec
	cp.ID = id
	cp.CreatedDate = prev.CreatedDate
	cp.UpdatedDate = prev.UpdatedDate.Add(time.Second)
	m.records[id] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) Get(_ context.Context, id string) (*inspection.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, inspection.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *memStore) List(_ context.Context, f inspection.ListFilter) ([]*inspection.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*inspection.Record
	for _, rec := range m.records {
		if f.InspectionTargetID != "" && rec.InspectionTargetID != f.InspectionTargetID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id string) (*inspection.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, inspection.ErrNotFound
	}
	delete(m.records, id)
	return rec, nil
}

func (m *memStore) LatestTopicResults(_ context.Context, targetID string) ([]inspection.TopicRecord, error) {
	return []inspection.TopicRecord{}, nil
}

func listDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

func newTestService(t *testing.T, store inspection.Store) (*inspection.Service, *attachments.Local) {
	t.Helper()
	files := attachments.NewLocal(t.TempDir())
	agg := inspection.NewAggregator(loadReference(t))
	return inspection.NewService(agg, store, files, grading.KindCriteria), files
}

func TestServiceDefaultKind(t *testing.T) {
	svc := inspection.NewService(nil, nil, nil, "")
	if got := svc.DefaultKind(); got != grading.DefaultKind {
		t.Errorf("expected default kind %s, got %s", grading.DefaultKind, got)
	}
}

func TestServicePreview(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)

	p := loadPayload(t, "payload_criteria_1")
	p.Files = []inspection.File{{Name: "act.pdf", Content: []byte("%PDF")}}

	res, err := svc.Preview(context.Background(), p, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Strategy != grading.KindCriteria {
		t.Errorf("expected criteria strategy, got %s", res.Strategy)
	}
	if got := gradeOf(t, res.Grade, "preview"); got != 1 {
		t.Errorf("expected grade 1, got %g", got)
	}
	if !reflect.DeepEqual(res.Files, []string{"act.pdf"}) {
		t.Errorf("expected file names [act.pdf], got %v", res.Files)
	}
	if len(store.records) != 0 {
		t.Errorf("preview must store nothing, got %d records", len(store.records))
	}
}

func TestServicePreviewValidation(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())

	p := loadPayload(t, "payload_criteria_1")
	p.OperatorID = ""
	_, err := svc.Preview(context.Background(), p, "")

	var verr *inspection.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestServiceCreateStoresAttachments(t *testing.T) {
	store := newMemStore()
	svc, files := newTestService(t, store)
	ctx := context.Background()

	p := loadPayload(t, "payload_generic_5")
	p.Files = []inspection.File{
		{Name: "photo.jpg", Content: []byte("jpeg")},
		{Name: "act.pdf", Content: []byte("pdf")},
	}

	rec, err := svc.Create(ctx, p, grading.KindWeights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gradeOf(t, rec.Grade, "record"); got != 5 {
		t.Errorf("expected grade 5, got %g", got)
	}
	if len(rec.Directions) != 3 {
		t.Fatalf("expected 3 directions, got %d", len(rec.Directions))
	}
	if got := rec.Directions[1].DirectionName; got != "Качество товара" {
		t.Errorf("unexpected direction name %q", got)
	}
	if got := rec.Directions[1].Topics[1].TopicName; got != "Рейтинг производителя" {
		t.Errorf("unexpected topic name %q", got)
	}
	if len(rec.Files) != 2 {
		t.Fatalf("expected 2 files, got %v", rec.Files)
	}

	data, err := files.Get(ctx, rec.Files[0])
	if err != nil {
		t.Fatalf("get stored file: %v", err)
	}
	if string(data) != "jpeg" {
		t.Errorf("unexpected stored content %q", data)
	}

	name, data, err := svc.Attachment(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("attachment: %v", err)
	}
	if name != "act.pdf" || string(data) != "pdf" {
		t.Errorf("unexpected attachment %q (%q)", name, data)
	}

	if _, _, err := svc.Attachment(ctx, rec.ID, 2); !errors.Is(err, attachments.ErrNotFound) {
		t.Errorf("expected attachments.ErrNotFound, got %v", err)
	}
}

func TestServiceCreateRemovesAttachmentsOnFailure(t *testing.T) {
	store := newMemStore()
	store.failOn = "create"
	svc, files := newTestService(t, store)

	p := loadPayload(t, "payload_generic_5")
	p.Files = []inspection.File{{Name: "photo.jpg", Content: []byte("jpeg")}}

	if _, err := svc.Create(context.Background(), p, grading.KindWeights); err == nil {
		t.Fatal("expected error, got nil")
	}

	entries, err := listDir(files.BaseDir)
	if err != nil {
		t.Fatalf("list dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected attachments to be removed, found %d", len(entries))
	}
}

func TestServiceCreateWithoutAttachmentStore(t *testing.T) {
	agg := inspection.NewAggregator(loadReference(t))
	svc := inspection.NewService(agg, newMemStore(), nil, "")

	p := loadPayload(t, "payload_generic_5")
	p.Files = []inspection.File{{Name: "photo.jpg"}}
	if _, err := svc.Create(context.Background(), p, ""); !errors.Is(err, inspection.ErrNoAttachmentStore) {
		t.Errorf("expected ErrNoAttachmentStore, got %v", err)
	}

	p.Files = nil
	rec, err := svc.Create(context.Background(), p, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Files) != 0 {
		t.Errorf("expected no files, got %v", rec.Files)
	}
}

func TestServiceUpdateReplacesChildren(t *testing.T) {
	store := newMemStore()
	svc, files := newTestService(t, store)
	ctx := context.Background()

	p := loadPayload(t, "payload_criteria_2")
	p.Files = []inspection.File{{Name: "old.txt", Content: []byte("old")}}
	created, err := svc.Create(ctx, p, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := gradeOf(t, created.Grade, "created"); got != 2 {
		t.Errorf("expected grade 2, got %g", got)
	}

	upd := loadPayload(t, "payload_criteria_1")
	upd.Directions = upd.Directions[:1]
	upd.Files = []inspection.File{{Name: "new.txt", Content: []byte("new")}}
	updated, err := svc.Update(ctx, created.ID, upd, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.ID != created.ID {
		t.Errorf("expected id %s, got %s", created.ID, updated.ID)
	}
	if got := gradeOf(t, updated.Grade, "updated"); got != 1 {
		t.Errorf("expected grade 1, got %g", got)
	}
	if len(updated.Directions) != 1 {
		t.Errorf("expected 1 direction, got %d", len(updated.Directions))
	}
	if !updated.UpdatedDate.After(created.UpdatedDate) {
		t.Errorf("expected updated date to advance past %v, got %v", created.UpdatedDate, updated.UpdatedDate)
	}

	if _, err := files.Get(ctx, created.Files[0]); !errors.Is(err, attachments.ErrNotFound) {
		t.Errorf("expected replaced attachment to be removed, got %v", err)
	}
	if len(updated.Files) != 1 || attachments.BaseName(updated.Files[0]) != "new.txt" {
		t.Errorf("unexpected files %v", updated.Files)
	}
}

func TestServiceUpdateKeepsFilesWhenNoneSubmitted(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	p := loadPayload(t, "payload_criteria_2")
	p.Files = []inspection.File{{Name: "keep.txt", Content: []byte("k")}}
	created, err := svc.Create(ctx, p, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, loadPayload(t, "payload_criteria_2"), "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !reflect.DeepEqual(created.Files, updated.Files) {
		t.Errorf("expected files %v to be kept, got %v", created.Files, updated.Files)
	}
}

func TestServiceUpdateNotFound(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())

	_, err := svc.Update(context.Background(), "missing", loadPayload(t, "payload_criteria_2"), "")
	if !errors.Is(err, inspection.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceDeleteReturnsRecord(t *testing.T) {
	store := newMemStore()
	svc, files := newTestService(t, store)
	ctx := context.Background()

	p := loadPayload(t, "payload_criteria_2")
	p.Files = []inspection.File{{Name: "gone.txt", Content: []byte("x")}}
	created, err := svc.Create(ctx, p, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	deleted, err := svc.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != created.ID {
		t.Errorf("expected deleted id %s, got %s", created.ID, deleted.ID)
	}

	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, inspection.ErrNotFound) {
		t.Errorf("get after delete: expected ErrNotFound, got %v", err)
	}
	if _, err := files.Get(ctx, created.Files[0]); !errors.Is(err, attachments.ErrNotFound) {
		t.Errorf("expected attachment to be removed, got %v", err)
	}
	if _, err := svc.Delete(ctx, created.ID); !errors.Is(err, inspection.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestServiceList(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, loadPayload(t, "payload_criteria_2"), ""); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := svc.List(ctx, inspection.ListFilter{InspectionTargetID: "3"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].ID != "insp-3" {
		t.Errorf("expected newest first, got %s", got[0].ID)
	}

	got, err = svc.List(ctx, inspection.ListFilter{InspectionTargetID: "1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}
