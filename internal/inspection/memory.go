package inspection

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory. It backs the daemon when
// no database is configured and is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	records map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	seq int64
	rec Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a copy of rec with fresh ids and timestamps.
func (m *MemoryStore) Create(_ context.Context, rec *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneRecord(rec)
	cp.ID = uuid.NewString()
	cp.CreatedDate = m.now()
	cp.UpdatedDate = cp.CreatedDate
	assignChildIDs(&cp)

	m.seq++
	m.records[cp.ID] = &memoryEntry{seq: m.seq, rec: cp}
	return ptr(cloneRecord(&cp)), nil
}

// Replace swaps the stored inspection and all of its children.
func (m *MemoryStore) Replace(_ context.Context, id string, rec *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneRecord(rec)
	cp.ID = id
	cp.CreatedDate = entry.rec.CreatedDate
	cp.UpdatedDate = m.now()
	assignChildIDs(&cp)

	entry.rec = cp
	return ptr(cloneRecord(&cp)), nil
}

// Get returns a stored inspection.
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ptr(cloneRecord(&entry.rec)), nil
}

// List returns inspections matching the filter, newest first.
func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*Record, error) {
	f = f.normalize()

	m.mu.RLock()
	entries := make([]*memoryEntry, 0, len(m.records))
	for _, e := range m.records {
		if f.matches(&e.rec) {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	out := []*Record{}
	for i := f.Offset; i < len(entries) && len(out) < f.Limit; i++ {
		out = append(out, ptr(cloneRecord(&entries[i].rec)))
	}
	return out, nil
}

// Delete removes an inspection and returns it.
func (m *MemoryStore) Delete(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.records, id)
	return ptr(entry.rec), nil
}

// LatestTopicResults returns the most recent result per topic for a target,
// ordered by topic id.
func (m *MemoryStore) LatestTopicResults(_ context.Context, targetID string) ([]TopicRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type latest struct {
		seq   int64
		topic TopicRecord
	}
	byTopic := map[string]latest{}
	for _, e := range m.records {
		if e.rec.InspectionTargetID != targetID {
			continue
		}
		for _, d := range e.rec.Directions {
			for _, t := range d.Topics {
				if cur, ok := byTopic[t.TopicID]; ok && cur.seq > e.seq {
					continue
				}
				t.CreatedDate = e.rec.CreatedDate
				byTopic[t.TopicID] = latest{seq: e.seq, topic: t}
			}
		}
	}

	out := make([]TopicRecord, 0, len(byTopic))
	for _, l := range byTopic {
		out = append(out, l.topic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

// matches applies the filter the way PostgresStore does: substring matches
// are case-insensitive and dates compare on the creation day in UTC.
func (f ListFilter) matches(rec *Record) bool {
	if f.Name != "" && !containsFold(rec.Name, f.Name) {
		return false
	}
	if f.Description != "" && !containsFold(rec.Description, f.Description) {
		return false
	}
	if f.Grade != nil && (rec.Grade == nil || *rec.Grade != *f.Grade) {
		return false
	}
	if f.InspectionOrganID != "" && rec.InspectionOrganID != f.InspectionOrganID {
		return false
	}
	if f.InspectionTargetID != "" && rec.InspectionTargetID != f.InspectionTargetID {
		return false
	}
	if f.DirectionID != "" && !hasDirection(rec, f.DirectionID) {
		return false
	}
	day := rec.CreatedDate.UTC().Format(time.DateOnly)
	if f.Date != nil && day != f.Date.UTC().Format(time.DateOnly) {
		return false
	}
	if f.StartDate != nil && day < f.StartDate.UTC().Format(time.DateOnly) {
		return false
	}
	if f.EndDate != nil && day > f.EndDate.UTC().Format(time.DateOnly) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasDirection(rec *Record, id string) bool {
	for _, d := range rec.Directions {
		if d.DirectionID == id {
			return true
		}
	}
	return false
}

func assignChildIDs(rec *Record) {
	for i := range rec.Directions {
		d := &rec.Directions[i]
		d.ID = uuid.NewString()
		for j := range d.Topics {
			d.Topics[j].ID = uuid.NewString()
			d.Topics[j].DirectionResultID = d.ID
		}
	}
}

// cloneRecord deep-copies the slices of a record so callers cannot mutate
// stored state.
func cloneRecord(rec *Record) Record {
	cp := *rec
	cp.Files = append([]string{}, rec.Files...)
	cp.Directions = make([]DirectionRecord, len(rec.Directions))
	for i, d := range rec.Directions {
		d.Topics = append([]TopicRecord{}, d.Topics...)
		cp.Directions[i] = d
	}
	return cp
}

func ptr(r Record) *Record {
	return &r
}
