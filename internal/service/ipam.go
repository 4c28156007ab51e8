package service

import (
	"context"
	"fmt"
	"strconv"

	"lodestone/internal/domain"
	"lodestone/internal/repository/sqlite"
)

// RecordService provides CRUD operations over the designable models for
// the HTTP layer and adapters. Writes outside a design run are journaled
// nowhere; they are plain source-of-truth edits.
type RecordService struct {
	repo     *sqlite.Repository
	eventBus *EventBus
}

// NewRecordService creates a new record service
func NewRecordService(repo *sqlite.Repository, eventBus *EventBus) *RecordService {
	return &RecordService{
		repo:     repo,
		eventBus: eventBus,
	}
}

// List returns records of a model, filtered by the given query. String
// values for integer fields are coerced so query parameters like vid=100
// match the stored INTEGER column.
func (s *RecordService) List(ctx context.Context, model string, query map[string]any) ([]domain.Record, error) {
	schema, ok := s.repo.Registry().Resolve(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	coerced := make(map[string]any, len(query))
	for key, value := range query {
		coerced[key] = coerceQueryValue(schema, key, value)
	}
	return s.repo.Find(ctx, schema.Path(), coerced)
}

func coerceQueryValue(schema *domain.Schema, key string, value any) any {
	str, ok := value.(string)
	if !ok {
		return value
	}
	field, ok := schema.Field(key)
	if !ok || field.Type != "INTEGER" {
		return value
	}
	if n, err := strconv.ParseInt(str, 10, 64); err == nil {
		return n
	}
	return value
}

// Get retrieves a single record by ID.
func (s *RecordService) Get(ctx context.Context, model, id string) (domain.Record, error) {
	schema, ok := s.repo.Registry().Resolve(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	return s.repo.Get(ctx, schema.Path(), domain.Record{"id": id})
}

// Create inserts a new record.
func (s *RecordService) Create(ctx context.Context, model string, fields domain.Record) (domain.Record, error) {
	schema, ok := s.repo.Registry().Resolve(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	if schema.Internal {
		return nil, fmt.Errorf("%s records are managed by design deployments", schema)
	}
	if err := s.validate(schema, fields, true); err != nil {
		return nil, err
	}

	record, err := s.repo.Insert(ctx, schema.Path(), fields)
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventRecordCreated,
		Payload: map[string]string{"model": schema.Path(), "id": record.ID()},
	})
	return record, nil
}

// Update modifies fields on an existing record.
func (s *RecordService) Update(ctx context.Context, model, id string, fields domain.Record) (domain.Record, error) {
	schema, ok := s.repo.Registry().Resolve(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	if err := s.validate(schema, fields, false); err != nil {
		return nil, err
	}

	record, err := s.repo.Update(ctx, schema.Path(), id, fields)
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventRecordUpdated,
		Payload: map[string]string{"model": schema.Path(), "id": id},
	})
	return record, nil
}

// Delete removes a record.
func (s *RecordService) Delete(ctx context.Context, model, id string) error {
	schema, ok := s.repo.Registry().Resolve(model)
	if !ok {
		return fmt.Errorf("unknown model %q", model)
	}
	if err := s.repo.Delete(ctx, schema.Path(), id); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventRecordDeleted,
		Payload: map[string]string{"model": schema.Path(), "id": id},
	})
	return nil
}

// validate applies the same model rules design runs enforce.
func (s *RecordService) validate(schema *domain.Schema, fields domain.Record, creating bool) error {
	switch schema.Path() {
	case domain.ModelPrefix:
		if cidr, ok := fields["prefix"].(string); ok {
			parsed, err := domain.ParsePrefix(cidr)
			if err != nil {
				return fmt.Errorf("invalid prefix: %w", err)
			}
			fields["prefix"] = parsed.String()
		} else if creating {
			return fmt.Errorf("a prefix requires a CIDR value")
		}
	case domain.ModelRelationship:
		if creating {
			return domain.ValidateRelationship(s.repo.Registry(), fields)
		}
	case domain.ModelVLAN:
		if creating {
			if _, ok := fields.Int("vid"); !ok {
				return fmt.Errorf("a VLAN requires a vid")
			}
		}
	}
	return nil
}
