package pipeline

import (
	"context"
	"fmt"

	"github.com/zenithml/zenith/pkg/models"
)

// ProjectionTransform keeps only the named columns on each record,
// failing the record if a column is missing. Export pipelines use it to
// pin the CSV column set regardless of what the source query returned.
func ProjectionTransform(columns []string) Transform {
	return func(ctx context.Context, record *models.Record) (*models.Record, error) {
		projected := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			v, ok := record.GetData(col)
			if !ok {
				return nil, fmt.Errorf("record missing column %s", col)
			}
			projected[col] = v
		}
		record.Data = projected
		return record, nil
	}
}

// FilterTransform drops records failing the predicate.
func FilterTransform(predicate func(*models.Record) bool) Transform {
	return func(ctx context.Context, record *models.Record) (*models.Record, error) {
		if predicate(record) {
			return record, nil
		}
		record.Release()
		return nil, nil
	}
}

// FieldMapperTransform renames fields according to the mapping.
// Unmapped fields are preserved.
func FieldMapperTransform(mapping map[string]string) Transform {
	return func(ctx context.Context, record *models.Record) (*models.Record, error) {
		if record.Data == nil {
			return record, nil
		}

		newData := make(map[string]interface{}, len(record.Data))
		for oldField, newField := range mapping {
			if value, ok := record.Data[oldField]; ok {
				newData[newField] = value
			}
		}
		for field, value := range record.Data {
			if _, mapped := mapping[field]; !mapped {
				newData[field] = value
			}
		}

		record.Data = newData
		return record, nil
	}
}

// TypeConverterTransform converts the value of a field with the
// provided converter. Records without the field pass through unchanged.
func TypeConverterTransform(field string, converter func(interface{}) (interface{}, error)) Transform {
	return func(ctx context.Context, record *models.Record) (*models.Record, error) {
		if record.Data == nil {
			return record, nil
		}

		if value, ok := record.Data[field]; ok {
			converted, err := converter(value)
			if err != nil {
				return nil, fmt.Errorf("failed to convert field %s: %w", field, err)
			}
			record.Data[field] = converted
		}

		return record, nil
	}
}

// SplitTagTransform stamps every record with a split name so the
// destination can route it to the right shard set.
func SplitTagTransform(split string) Transform {
	return func(ctx context.Context, record *models.Record) (*models.Record, error) {
		record.SetSplit(split)
		return record, nil
	}
}
