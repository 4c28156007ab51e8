package service

import (
	"context"
	"fmt"
	"io"

	"lodestone/internal/codec"
)

var exporters = map[string]codec.Exporter{
	"json":              codec.NewJSONCodec(),
	"yaml":              codec.NewYAMLCodec(),
	"ansible-inventory": codec.NewAnsibleCodec(),
}

// Snapshot collects every designable model's records for export.
func (s *RecordService) Snapshot(ctx context.Context) (codec.Snapshot, error) {
	snap := codec.Snapshot{}
	for _, schema := range s.repo.Registry().Schemas() {
		if schema.Internal {
			continue
		}
		records, err := s.repo.Find(ctx, schema.Path(), nil)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", schema.Plural, err)
		}
		if len(records) > 0 {
			snap[schema.Plural] = records
		}
	}
	return snap, nil
}

// Export writes the store's records to w in the named format.
func (s *RecordService) Export(ctx context.Context, format string, w io.Writer) error {
	exporter, ok := exporters[format]
	if !ok {
		return fmt.Errorf("unknown export format %q", format)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	return exporter.Export(snap, w)
}
