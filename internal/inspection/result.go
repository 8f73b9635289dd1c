package inspection

import (
	"time"

	"github.com/inspectra/inspectra/pkg/grading"
)

// DirectionResult is one direction's outcome with its topic results.
type DirectionResult struct {
	grading.ScoredItem
	Topics []grading.ScoredItem `json:"topic_results"`
}

// Result is an aggregated inspection ready to be stored or returned.
type Result struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	InspectionOrganID  string            `json:"inspection_organ_id"`
	InspectionTargetID string            `json:"inspection_target_id"`
	OperatorID         string            `json:"operator_id"`
	InspectionDate     Timestamp         `json:"inspection_date"`
	Files              []string          `json:"files"`
	Grade              *float64          `json:"grade"`
	Strategy           grading.Kind      `json:"strategy"`
	Directions         []DirectionResult `json:"direction_results"`
}

// Record is a stored inspection.
type Record struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Grade              *float64          `json:"grade"`
	InspectionOrganID  string            `json:"inspection_organ_id"`
	InspectionTargetID string            `json:"inspection_target_id"`
	OperatorID         string            `json:"operator_id"`
	InspectionDate     Timestamp         `json:"inspection_date"`
	Files              []string          `json:"files"`
	CreatedDate        time.Time         `json:"created_date"`
	UpdatedDate        time.Time         `json:"updated_date"`
	Directions         []DirectionRecord `json:"direction_results"`
}

// DirectionRecord is a stored direction result.
type DirectionRecord struct {
	ID            string        `json:"id"`
	DirectionID   string        `json:"direction_id"`
	DirectionName string        `json:"direction_name"`
	Description   string        `json:"description"`
	Grade         *float64      `json:"grade"`
	Topics        []TopicRecord `json:"topic_results"`
}

// TopicRecord is a stored topic result.
type TopicRecord struct {
	ID                string    `json:"id"`
	DirectionResultID string    `json:"direction_result_id,omitempty"`
	TopicID           string    `json:"topic_id"`
	TopicName         string    `json:"topic_name"`
	Description       string    `json:"description"`
	Grade             *float64  `json:"grade"`
	CreatedDate       time.Time `json:"created_date,omitempty"`
}

// ListFilter narrows a listing of stored inspections. Zero values do not
// filter. Dates compare against the creation day.
type ListFilter struct {
	Limit              int
	Offset             int
	Name               string
	Description        string
	Grade              *float64
	InspectionOrganID  string
	InspectionTargetID string
	DirectionID        string
	Date               *time.Time
	StartDate          *time.Time
	EndDate            *time.Time
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// normalize clamps paging to the allowed range.
func (f ListFilter) normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// newRecord lays out an aggregated result as a record to be stored. Row ids
// are left to the store.
func newRecord(r *Result) *Record {
	rec := &Record{
		Name:               r.Name,
		Description:        r.Description,
		Grade:              r.Grade,
		InspectionOrganID:  r.InspectionOrganID,
		InspectionTargetID: r.InspectionTargetID,
		OperatorID:         r.OperatorID,
		InspectionDate:     r.InspectionDate,
		Files:              r.Files,
		Directions:         make([]DirectionRecord, len(r.Directions)),
	}
	if rec.Files == nil {
		rec.Files = []string{}
	}
	for i, d := range r.Directions {
		dr := DirectionRecord{
			DirectionID:   d.ID,
			DirectionName: d.Name,
			Description:   d.Description,
			Grade:         d.Grade,
			Topics:        make([]TopicRecord, len(d.Topics)),
		}
		for j, t := range d.Topics {
			dr.Topics[j] = TopicRecord{
				TopicID:     t.ID,
				TopicName:   t.Name,
				Description: t.Description,
				Grade:       t.Grade,
			}
		}
		rec.Directions[i] = dr
	}
	return rec
}
