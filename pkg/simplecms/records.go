package simplecms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func contentTypeFromRecord(r Record) (*ContentType, error) {
	id, err := uuid.Parse(recordString(r, "id"))
	if err != nil {
		return nil, fmt.Errorf("content type id: %w", err)
	}
	return &ContentType{
		ID:            id,
		Name:          recordString(r, "name"),
		Slug:          recordString(r, "slug"),
		Description:   recordString(r, "description"),
		JSONSchema:    recordString(r, "json_schema"),
		FieldConfig:   recordString(r, "field_config"),
		SchemaVersion: recordInt(r, "schema_version"),
		CreatedAt:     recordTime(r, "created_at"),
		UpdatedAt:     recordTime(r, "updated_at"),
	}, nil
}

func contentItemFromRecord(r Record) (*ContentItem, error) {
	id, err := uuid.Parse(recordString(r, "id"))
	if err != nil {
		return nil, fmt.Errorf("content item id: %w", err)
	}
	typeID, err := uuid.Parse(recordString(r, "content_type_id"))
	if err != nil {
		return nil, fmt.Errorf("content item %s type id: %w", id, err)
	}
	item := &ContentItem{
		ID:            id,
		ContentTypeID: typeID,
		Slug:          recordString(r, "slug"),
		Data:          recordString(r, "data"),
		AuthorID:      recordString(r, "author_id"),
		CreatedAt:     recordTime(r, "created_at"),
		UpdatedAt:     recordTime(r, "updated_at"),
	}
	return item, nil
}

func relationFromRecord(r Record) (*ContentRelation, error) {
	id, err := uuid.Parse(recordString(r, "id"))
	if err != nil {
		return nil, fmt.Errorf("relation id: %w", err)
	}
	source, err := uuid.Parse(recordString(r, "source_id"))
	if err != nil {
		return nil, fmt.Errorf("relation %s source id: %w", id, err)
	}
	target, err := uuid.Parse(recordString(r, "target_id"))
	if err != nil {
		return nil, fmt.Errorf("relation %s target id: %w", id, err)
	}
	return &ContentRelation{
		ID:        id,
		SourceID:  source,
		TargetID:  target,
		FieldName: recordString(r, "field_name"),
		CreatedAt: recordTime(r, "created_at"),
	}, nil
}

// decodeData keeps numbers as json.Number so integers beyond 2^53 survive.
func decodeData(raw string) (map[string]any, error) {
	data := map[string]any{}
	if raw == "" {
		return data, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode item data: %w", err)
	}
	return data, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode item data: %w", err)
	}
	return string(b), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
