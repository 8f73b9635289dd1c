package inspection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrNotFound is returned when an inspection does not exist.
var ErrNotFound = errors.New("inspection not found")

// Store persists inspections together with their direction and topic
// results. Writes are atomic across the whole graph.
type Store interface {
	Create(ctx context.Context, rec *Record) (*Record, error)
	Replace(ctx context.Context, id string, rec *Record) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, f ListFilter) ([]*Record, error)
	Delete(ctx context.Context, id string) (*Record, error)
	LatestTopicResults(ctx context.Context, targetID string) ([]TopicRecord, error)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore implements Store on the tables.* schema.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `r.id, r.name, r.description, r.grade, COALESCE(r.inspection_organ_id, ''),
	COALESCE(r.inspection_target_id, ''), COALESCE(r.operator_id, ''), r.inspection_date, r.files,
	r.created_date, r.updated_date`

// Create inserts an inspection and all of its children in one transaction.
func (s *PostgresStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	files, err := json.Marshal(nonNil(rec.Files))
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tables.inspection_result
			(id, name, description, grade, inspection_organ_id, inspection_target_id, operator_id, inspection_date, files)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, rec.Name, rec.Description, rec.Grade, nullIfEmpty(rec.InspectionOrganID),
		nullIfEmpty(rec.InspectionTargetID), nullIfEmpty(rec.OperatorID), rec.InspectionDate.Time, string(files),
	)
	if err != nil {
		return nil, fmt.Errorf("insert inspection: %w", err)
	}
	if err := insertChildren(ctx, tx, id, rec.Directions); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.Get(ctx, id)
}

// Replace overwrites an inspection's fields and replaces all of its
// children. The update date advances.
func (s *PostgresStore) Replace(ctx context.Context, id string, rec *Record) (*Record, error) {
	files, err := json.Marshal(nonNil(rec.Files))
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tables.inspection_result SET
			name = $2, description = $3, grade = $4, inspection_organ_id = $5,
			inspection_target_id = $6, operator_id = $7, inspection_date = $8, files = $9,
			updated_date = now()
		WHERE id = $1`,
		id, rec.Name, rec.Description, rec.Grade, nullIfEmpty(rec.InspectionOrganID),
		nullIfEmpty(rec.InspectionTargetID), nullIfEmpty(rec.OperatorID), rec.InspectionDate.Time, string(files),
	)
	if err != nil {
		return nil, fmt.Errorf("update inspection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tables.direction_result WHERE inspection_result_id = $1`, id,
	); err != nil {
		return nil, fmt.Errorf("delete direction results: %w", err)
	}
	if err := insertChildren(ctx, tx, id, rec.Directions); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.Get(ctx, id)
}

func insertChildren(ctx context.Context, tx *sql.Tx, inspectionID string, directions []DirectionRecord) error {
	for i, d := range directions {
		directionResultID := uuid.NewString()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tables.direction_result (id, inspection_result_id, direction_id, description, grade, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			directionResultID, inspectionID, nullIfEmpty(d.DirectionID), d.Description, d.Grade, i,
		)
		if err != nil {
			return fmt.Errorf("insert direction result %s: %w", d.DirectionID, err)
		}
		for j, t := range d.Topics {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tables.topic_result (id, direction_result_id, topic_id, description, grade, position)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.NewString(), directionResultID, nullIfEmpty(t.TopicID), t.Description, t.Grade, j,
			)
			if err != nil {
				return fmt.Errorf("insert topic result %s: %w", t.TopicID, err)
			}
		}
	}
	return nil
}

// Get loads one inspection with its children.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	return getRecord(ctx, s.db, id)
}

func getRecord(ctx context.Context, q queryer, id string) (*Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM tables.inspection_result r WHERE r.id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inspection %s: %w", id, err)
	}
	if err := loadChildren(ctx, q, []*Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns inspections matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Record, error) {
	f = f.normalize()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Name != "" {
		add(`r.name ILIKE '%%' || $%d || '%%'`, f.Name)
	}
	if f.Description != "" {
		add(`r.description ILIKE '%%' || $%d || '%%'`, f.Description)
	}
	if f.Grade != nil {
		add(`r.grade = $%d`, *f.Grade)
	}
	if f.InspectionOrganID != "" {
		add(`r.inspection_organ_id = $%d`, f.InspectionOrganID)
	}
	if f.InspectionTargetID != "" {
		add(`r.inspection_target_id = $%d`, f.InspectionTargetID)
	}
	if f.DirectionID != "" {
		add(`EXISTS (SELECT 1 FROM tables.direction_result d
			WHERE d.inspection_result_id = r.id AND d.direction_id = $%d)`, f.DirectionID)
	}
	if f.Date != nil {
		add(`r.created_date::date = $%d::date`, f.Date.UTC().Format("2006-01-02"))
	}
	if f.StartDate != nil {
		add(`r.created_date::date >= $%d::date`, f.StartDate.UTC().Format("2006-01-02"))
	}
	if f.EndDate != nil {
		add(`r.created_date::date <= $%d::date`, f.EndDate.UTC().Format("2006-01-02"))
	}

	query := `SELECT ` + recordColumns + ` FROM tables.inspection_result r`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY r.created_date DESC, r.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, s.db, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes an inspection and returns it as it was stored.
func (s *PostgresStore) Delete(ctx context.Context, id string) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, err := getRecord(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tables.inspection_result WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete inspection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// LatestTopicResults returns, for each topic ever graded on the target, the
// topic result from the most recent inspection.
func (s *PostgresStore) LatestTopicResults(ctx context.Context, targetID string) ([]TopicRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (t.topic_id)
			t.id, t.direction_result_id, t.topic_id, COALESCE(tp.name, ''), t.description, t.grade, r.created_date
		FROM tables.topic_result t
		JOIN tables.direction_result d ON d.id = t.direction_result_id
		JOIN tables.inspection_result r ON r.id = d.inspection_result_id
		LEFT JOIN refs.topic tp ON tp.id = t.topic_id
		WHERE r.inspection_target_id = $1 AND t.topic_id IS NOT NULL
		ORDER BY t.topic_id, r.created_date DESC, r.id DESC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("query latest topic results: %w", err)
	}
	defer rows.Close()

	results := []TopicRecord{}
	for rows.Next() {
		var (
			tr    TopicRecord
			grade sql.NullFloat64
		)
		if err := rows.Scan(&tr.ID, &tr.DirectionResultID, &tr.TopicID, &tr.TopicName, &tr.Description, &grade, &tr.CreatedDate); err != nil {
			return nil, fmt.Errorf("scan topic result: %w", err)
		}
		tr.Grade = floatPtr(grade)
		results = append(results, tr)
	}
	return results, rows.Err()
}

// loadChildren fills direction and topic results for the given records with
// one query per level.
func loadChildren(ctx context.Context, q queryer, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	byID := make(map[string]*Record, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		rec.Directions = []DirectionRecord{}
		byID[rec.ID] = rec
		ids[i] = rec.ID
	}

	rows, err := q.QueryContext(ctx, `
		SELECT d.id, d.inspection_result_id, COALESCE(d.direction_id, ''), COALESCE(dn.name, ''), d.description, d.grade
		FROM tables.direction_result d
		LEFT JOIN refs.direction dn ON dn.id = d.direction_id
		WHERE d.inspection_result_id = ANY($1)
		ORDER BY d.inspection_result_id, d.position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query direction results: %w", err)
	}

	type loc struct {
		rec *Record
		idx int
	}
	directions := map[string]loc{}
	var directionIDs []string
	for rows.Next() {
		var (
			dr       DirectionRecord
			parentID string
			grade    sql.NullFloat64
		)
		if err := rows.Scan(&dr.ID, &parentID, &dr.DirectionID, &dr.DirectionName, &dr.Description, &grade); err != nil {
			rows.Close()
			return fmt.Errorf("scan direction result: %w", err)
		}
		dr.Grade = floatPtr(grade)
		dr.Topics = []TopicRecord{}
		rec := byID[parentID]
		rec.Directions = append(rec.Directions, dr)
		directions[dr.ID] = loc{rec: rec, idx: len(rec.Directions) - 1}
		directionIDs = append(directionIDs, dr.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(directionIDs) == 0 {
		return nil
	}

	rows, err = q.QueryContext(ctx, `
		SELECT t.id, t.direction_result_id, COALESCE(t.topic_id, ''), COALESCE(tn.name, ''), t.description, t.grade
		FROM tables.topic_result t
		LEFT JOIN refs.topic tn ON tn.id = t.topic_id
		WHERE t.direction_result_id = ANY($1)
		ORDER BY t.direction_result_id, t.position`, pq.Array(directionIDs))
	if err != nil {
		return fmt.Errorf("query topic results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tr    TopicRecord
			grade sql.NullFloat64
		)
		if err := rows.Scan(&tr.ID, &tr.DirectionResultID, &tr.TopicID, &tr.TopicName, &tr.Description, &grade); err != nil {
			return fmt.Errorf("scan topic result: %w", err)
		}
		tr.Grade = floatPtr(grade)
		l := directions[tr.DirectionResultID]
		d := &l.rec.Directions[l.idx]
		d.Topics = append(d.Topics, tr)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec   Record
		grade sql.NullFloat64
		date  sql.NullTime
		files []byte
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &grade, &rec.InspectionOrganID,
		&rec.InspectionTargetID, &rec.OperatorID, &date, &files, &rec.CreatedDate, &rec.UpdatedDate)
	if err != nil {
		return nil, err
	}
	rec.Grade = floatPtr(grade)
	if date.Valid {
		rec.InspectionDate = Timestamp{date.Time}
	}
	rec.Files = []string{}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &rec.Files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
	}
	return &rec, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}
