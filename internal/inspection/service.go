// Package inspection builds graded inspection results from submitted
// payloads and manages their storage.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/inspectra/inspectra/internal/attachments"
	"github.com/inspectra/inspectra/pkg/grading"
)

// ErrNoAttachmentStore is returned when a payload carries files but the
// service was built without an attachment store.
var ErrNoAttachmentStore = errors.New("attachment storage is not configured")

// Service orchestrates validation, aggregation, attachment storage and
// persistence of inspections.
type Service struct {
	agg         *Aggregator
	store       Store
	files       attachments.Store
	defaultKind grading.Kind
}

// NewService creates an inspection service. An empty defaultKind falls back
// to grading.DefaultKind.
func NewService(agg *Aggregator, store Store, files attachments.Store, defaultKind grading.Kind) *Service {
	if defaultKind == "" {
		defaultKind = grading.DefaultKind
	}
	return &Service{agg: agg, store: store, files: files, defaultKind: defaultKind}
}

// DefaultKind returns the strategy used when a request does not name one.
func (s *Service) DefaultKind() grading.Kind {
	return s.defaultKind
}

func (s *Service) kind(k grading.Kind) grading.Kind {
	if k == "" {
		return s.defaultKind
	}
	return k
}

// Preview grades a payload without storing anything. File references in the
// result are the submitted file names.
func (s *Service) Preview(ctx context.Context, p Payload, kind grading.Kind) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res, err := s.agg.Build(ctx, p, s.kind(kind))
	if err != nil {
		return nil, err
	}
	res.Files = make([]string, len(p.Files))
	for i, f := range p.Files {
		res.Files[i] = f.Name
	}
	return res, nil
}

// Create grades a payload, stores its attachments and persists the result.
// Attachments are removed again if persistence fails.
func (s *Service) Create(ctx context.Context, p Payload, kind grading.Kind) (*Record, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res, err := s.agg.Build(ctx, p, s.kind(kind))
	if err != nil {
		return nil, err
	}

	refs, err := s.saveFiles(ctx, p.Files)
	if err != nil {
		return nil, err
	}
	res.Files = refs

	rec, err := s.store.Create(ctx, newRecord(res))
	if err != nil {
		s.removeFiles(ctx, refs)
		return nil, fmt.Errorf("create inspection: %w", err)
	}
	log.Printf("created inspection %s (strategy %s, grade %s)", rec.ID, res.Strategy, formatGrade(rec.Grade))
	return rec, nil
}

// Update regrades a payload and replaces the stored inspection with it,
// including all direction and topic results. Submitted files replace the
// previous attachments; without files the previous attachments are kept.
func (s *Service) Update(ctx context.Context, id string, p Payload, kind grading.Kind) (*Record, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	prev, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.agg.Build(ctx, p, s.kind(kind))
	if err != nil {
		return nil, err
	}

	res.Files = prev.Files
	var refs []string
	if len(p.Files) > 0 {
		refs, err = s.saveFiles(ctx, p.Files)
		if err != nil {
			return nil, err
		}
		res.Files = refs
	}

	rec, err := s.store.Replace(ctx, id, newRecord(res))
	if err != nil {
		s.removeFiles(ctx, refs)
		return nil, fmt.Errorf("update inspection %s: %w", id, err)
	}
	if len(refs) > 0 {
		s.removeFiles(ctx, prev.Files)
	}
	log.Printf("updated inspection %s (strategy %s, grade %s)", rec.ID, res.Strategy, formatGrade(rec.Grade))
	return rec, nil
}

// Get returns a stored inspection.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// List returns stored inspections matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Record, error) {
	return s.store.List(ctx, f)
}

// Delete removes a stored inspection and its attachments and returns the
// removed record.
func (s *Service) Delete(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.removeFiles(ctx, rec.Files)
	log.Printf("deleted inspection %s", id)
	return rec, nil
}

// LatestTopicResults returns the most recent result per topic for a target.
func (s *Service) LatestTopicResults(ctx context.Context, targetID string) ([]TopicRecord, error) {
	return s.store.LatestTopicResults(ctx, targetID)
}

// Attachment reads back the index-th attached file of an inspection and
// returns its original name with the content.
func (s *Service) Attachment(ctx context.Context, id string, index int) (string, []byte, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if index < 0 || index >= len(rec.Files) {
		return "", nil, fmt.Errorf("%w: inspection %s has no file %d", attachments.ErrNotFound, id, index)
	}
	if s.files == nil {
		return "", nil, ErrNoAttachmentStore
	}
	ref := rec.Files[index]
	data, err := s.files.Get(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	return attachments.BaseName(ref), data, nil
}

func (s *Service) saveFiles(ctx context.Context, files []File) ([]string, error) {
	if len(files) == 0 {
		return []string{}, nil
	}
	if s.files == nil {
		return nil, ErrNoAttachmentStore
	}
	in := make([]attachments.File, len(files))
	for i, f := range files {
		in[i] = attachments.File{Name: f.Name, Data: f.Content}
	}
	refs, err := attachments.SaveAll(ctx, s.files, in)
	if err != nil {
		return nil, fmt.Errorf("save attachments: %w", err)
	}
	return refs, nil
}

func (s *Service) removeFiles(ctx context.Context, refs []string) {
	if s.files == nil || len(refs) == 0 {
		return
	}
	if err := attachments.RemoveAll(context.WithoutCancel(ctx), s.files, refs); err != nil {
		log.Printf("failed to remove attachments: %v", err)
	}
}

func formatGrade(g *float64) string {
	if g == nil {
		return "none"
	}
	return fmt.Sprintf("%g", *g)
}
