package inspection

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrDuplicateEntity is returned when a payload repeats a direction id, or a
// topic id anywhere across its directions.
var ErrDuplicateEntity = errors.New("duplicate entity in payload")

// Payload is a submitted inspection, as accepted on create and update.
type Payload struct {
	Name               string           `json:"name" validate:"required,max=512"`
	Description        string           `json:"description"`
	Grade              *float64         `json:"grade" validate:"omitempty,gte=0"`
	InspectionOrganID  string           `json:"inspection_organ_id" validate:"required"`
	InspectionTargetID string           `json:"inspection_target_id" validate:"required"`
	OperatorID         string           `json:"operator_id" validate:"required"`
	InspectionDate     Timestamp        `json:"inspection_date"`
	Files              []File           `json:"files" validate:"omitempty,dive"`
	Directions         []DirectionInput `json:"direction_results" validate:"omitempty,dive"`
}

// DirectionInput is one submitted direction with its topics.
type DirectionInput struct {
	DirectionID string       `json:"direction_id" validate:"required"`
	Grade       *float64     `json:"grade" validate:"omitempty,gte=0"`
	Description string       `json:"description"`
	Topics      []TopicInput `json:"topic_results" validate:"omitempty,dive"`
}

// TopicInput is one submitted topic grade.
type TopicInput struct {
	TopicID     string   `json:"topic_id" validate:"required"`
	Grade       *float64 `json:"grade" validate:"omitempty,gte=0"`
	Description string   `json:"description"`
}

// File is an uploaded attachment. Content is base64 in JSON.
type File struct {
	Name    string `json:"name" validate:"required,max=255"`
	Content []byte `json:"content"`
}

// timestampLayouts are accepted on input, in order. The second matches the
// naive ISO form without a zone used by existing clients.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is a time that accepts zone-less ISO 8601 input and renders as
// RFC 3339.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses s with any of the accepted layouts. Zone-less input
// is interpreted as UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ValidationError lists invalid payload fields keyed by their JSON path.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and rejects duplicate ids. Field errors
// are reported as a *ValidationError; duplicates wrap ErrDuplicateEntity.
func (p *Payload) Validate() error {
	fields := map[string]string{}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate payload: %w", err)
		}
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = describeTag(fe)
		}
	}
	if p.InspectionDate.IsZero() {
		fields["inspection_date"] = "is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return p.checkDuplicates()
}

func (p *Payload) checkDuplicates() error {
	directions := make(map[string]bool, len(p.Directions))
	topics := map[string]bool{}
	for _, d := range p.Directions {
		if directions[d.DirectionID] {
			return fmt.Errorf("%w: direction %s", ErrDuplicateEntity, d.DirectionID)
		}
		directions[d.DirectionID] = true
		for _, t := range d.Topics {
			if topics[t.TopicID] {
				return fmt.Errorf("%w: topic %s", ErrDuplicateEntity, t.TopicID)
			}
			topics[t.TopicID] = true
		}
	}
	return nil
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
