package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same store code
// serves direct calls and transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type store struct {
	q        querier
	registry *domain.Registry
}

var _ repository.Store = store{}

func (s store) schema(model string) (*domain.Schema, error) {
	schema, ok := s.registry.Resolve(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	return schema, nil
}

// Find returns all records matching the query, in insertion order.
func (s store) Find(ctx context.Context, model string, query domain.Record) ([]domain.Record, error) {
	schema, err := s.schema(model)
	if err != nil {
		return nil, err
	}

	where, args, err := s.whereClause(schema, query)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY rowid", selectColumns(schema), schema.Table, where)
	rows, err := s.q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", schema.Table, err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		record, err := scanRecord(schema, rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Get returns exactly one matching record.
func (s store) Get(ctx context.Context, model string, query domain.Record) (domain.Record, error) {
	schema, err := s.schema(model)
	if err != nil {
		return nil, err
	}
	records, err := s.Find(ctx, model, query)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, fmt.Errorf("no %s matching %v: %w", schema, query, repository.ErrNotFound)
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("%d %s records match %v: %w", len(records), schema, query, repository.ErrMultiple)
	}
}

// Count returns the number of matching records.
func (s store) Count(ctx context.Context, model string, query domain.Record) (int, error) {
	schema, err := s.schema(model)
	if err != nil {
		return 0, err
	}
	where, args, err := s.whereClause(schema, query)
	if err != nil {
		return 0, err
	}
	rows, err := s.q.QueryContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", schema.Table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", schema.Table, err)
	}
	defer rows.Close()
	count := 0
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// Insert stores a new record.
func (s store) Insert(ctx context.Context, model string, fields domain.Record) (domain.Record, error) {
	schema, err := s.schema(model)
	if err != nil {
		return nil, err
	}

	id := fields.ID()
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)

	columns := []string{"id", "data", "created_at", "updated_at"}
	values := []any{id, nil, now, now}

	known, extras, err := splitFields(schema, fields)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extra fields: %w", err)
	}
	values[1] = string(data)

	for column, value := range known {
		columns = append(columns, column)
		values = append(values, value)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.Table, strings.Join(quoted, ", "), placeholders)
	if _, err := s.q.ExecContext(ctx, stmt, values...); err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", schema, err)
	}

	return s.Get(ctx, model, domain.Record{"id": id})
}

// Update applies fields to an existing record. Extra (undeclared) fields
// merge into the data document rather than replacing it.
func (s store) Update(ctx context.Context, model string, id string, fields domain.Record) (domain.Record, error) {
	schema, err := s.schema(model)
	if err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, model, domain.Record{"id": id})
	if err != nil {
		return nil, err
	}

	known, extras, err := splitFields(schema, fields)
	if err != nil {
		return nil, err
	}

	assignments := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}
	for column, value := range known {
		assignments = append(assignments, quoteIdent(column)+" = ?")
		args = append(args, value)
	}
	if len(extras) > 0 {
		merged := extraFields(schema, existing)
		for k, v := range extras {
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extra fields: %w", err)
		}
		assignments = append(assignments, "data = ?")
		args = append(args, string(data))
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", schema.Table, strings.Join(assignments, ", "))
	if _, err := s.q.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", schema, id, err)
	}

	return s.Get(ctx, model, domain.Record{"id": id})
}

// Delete removes a record by ID.
func (s store) Delete(ctx context.Context, model string, id string) error {
	schema, err := s.schema(model)
	if err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", schema.Table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", schema, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no %s with id %s: %w", schema, id, repository.ErrNotFound)
	}
	return nil
}

// whereClause builds the WHERE fragment for a query map. Declared fields
// match their columns; anything else matches inside the JSON data column.
func (s store) whereClause(schema *domain.Schema, query domain.Record) (string, []any, error) {
	if len(query) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []any
	for key, value := range query {
		if strings.Contains(key, "__") {
			return "", nil, fmt.Errorf("nested query key %q must be resolved before reaching the store", key)
		}
		if key == "id" {
			clauses = append(clauses, "id = ?")
			args = append(args, value)
			continue
		}
		if field, ok := schema.Field(key); ok {
			if field.Kind == domain.FieldRefList {
				return "", nil, fmt.Errorf("cannot query by list field %q", key)
			}
			encoded, err := encodeValue(field, value)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, quoteIdent(field.Column())+" = ?")
			args = append(args, encoded)
			continue
		}
		if !identPattern.MatchString(key) {
			return "", nil, fmt.Errorf("invalid query key %q", key)
		}
		clauses = append(clauses, "json_extract(data, '$."+key+"') = ?")
		args = append(args, value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// identPattern restricts undeclared query keys to plain identifiers so
// they are safe to embed in a json_extract path.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// splitFields separates declared fields (by column) from extras destined for
// the data document.
func splitFields(schema *domain.Schema, fields domain.Record) (map[string]any, map[string]any, error) {
	known := map[string]any{}
	extras := map[string]any{}
	for key, value := range fields {
		switch key {
		case "id", "created_at", "updated_at":
			continue
		}
		field, ok := schema.Field(key)
		if !ok {
			extras[key] = value
			continue
		}
		if field.Kind == domain.FieldRefList {
			return nil, nil, fmt.Errorf("list field %q cannot be stored directly", key)
		}
		encoded, err := encodeValue(field, value)
		if err != nil {
			return nil, nil, err
		}
		known[field.Column()] = encoded
	}
	return known, extras, nil
}

// encodeValue converts a field value to its column representation.
func encodeValue(field domain.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch field.Kind {
	case domain.FieldRef:
		switch v := value.(type) {
		case domain.Record:
			return v.ID(), nil
		case map[string]any:
			return domain.Record(v).ID(), nil
		case string:
			return v, nil
		default:
			return nil, fmt.Errorf("reference field %q requires a record or id, got %T", field.Name, value)
		}
	case domain.FieldJSON:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", field.Name, err)
		}
		return string(data), nil
	}
	switch v := value.(type) {
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", field.Name, err)
		}
		return string(data), nil
	}
	return value, nil
}

func selectColumns(schema *domain.Schema) string {
	columns := []string{"id"}
	for _, field := range schema.Fields {
		if field.Kind == domain.FieldRefList {
			continue
		}
		columns = append(columns, quoteIdent(field.Column()))
	}
	columns = append(columns, "data", "created_at", "updated_at")
	return strings.Join(columns, ", ")
}

// scanRecord reads one row in selectColumns order.
func scanRecord(schema *domain.Schema, rows *sql.Rows) (domain.Record, error) {
	var fields []domain.Field
	for _, field := range schema.Fields {
		if field.Kind != domain.FieldRefList {
			fields = append(fields, field)
		}
	}

	holders := make([]any, len(fields)+4)
	for i := range holders {
		holders[i] = new(any)
	}
	if err := rows.Scan(holders...); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", schema.Table, err)
	}

	record := domain.Record{}
	record["id"] = normalize(*holders[0].(*any))
	for i, field := range fields {
		value := normalize(*holders[i+1].(*any))
		if value == nil {
			continue
		}
		if field.Kind == domain.FieldJSON {
			var decoded any
			if s, ok := value.(string); ok && json.Unmarshal([]byte(s), &decoded) == nil {
				value = decoded
			}
		}
		record[field.Name] = value
	}

	if data, ok := normalize(*holders[len(fields)+1].(*any)).(string); ok && data != "" {
		var extras map[string]any
		if err := json.Unmarshal([]byte(data), &extras); err == nil {
			for k, v := range extras {
				if _, exists := record[k]; !exists {
					record[k] = v
				}
			}
		}
	}
	if created := normalize(*holders[len(fields)+2].(*any)); created != nil {
		record["created_at"] = created
	}
	if updated := normalize(*holders[len(fields)+3].(*any)); updated != nil {
		record["updated_at"] = updated
	}
	return record, nil
}

// normalize collapses driver-specific scan types.
func normalize(v any) any {
	switch value := v.(type) {
	case []byte:
		return string(value)
	case time.Time:
		return value.UTC().Format(time.RFC3339)
	default:
		return v
	}
}

// extraFields recovers the undeclared fields of a stored record.
func extraFields(schema *domain.Schema, record domain.Record) map[string]any {
	extras := map[string]any{}
	for key, value := range record {
		switch key {
		case "id", "created_at", "updated_at":
			continue
		}
		if _, ok := schema.Field(key); !ok {
			extras[key] = value
		}
	}
	return extras
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
