package bulk

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/extract"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/transform"
)

const (
	// ParentIDKey links a child line to the line of its parent object.
	ParentIDKey = "__parentId"
	// TypeNameKey carries the GraphQL type of a line.
	TypeNameKey = "__typename"

	maxLineSize = 16 << 20
)

// ReadLines decodes a JSONL result with snake_case keys. Malformed lines are
// passed to skip.
func ReadLines(r io.Reader, skip func(error)) ([]models.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []models.Record
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec, err := extract.DecodeRecord(raw)
		if err != nil {
			skip(err)
			continue
		}
		lines = append(lines, transform.SnakeKeys(rec).(models.Record))
	}
	if err := scanner.Err(); err != nil {
		return lines, errors.Wrap(err, errors.ErrorTypeConnection, "read bulk result")
	}
	return lines, nil
}

// Compose rebuilds records from result lines that may arrive in any order.
// Lines of spec.RecordType become records; lines of a component type are
// appended to the list field of the record named by their parent marker.
// Lines of other types, such as the owner objects of metafields, only serve
// as parents and are dropped. It returns the number of orphaned components.
func Compose(lines []models.Record, spec *extract.BulkSpec) ([]models.Record, int) {
	byID := make(map[string]models.Record)
	var records []models.Record
	for _, line := range lines {
		if lineType(line, spec) != spec.RecordType {
			continue
		}
		records = append(records, line)
		if id, ok := line["id"].(string); ok {
			byID[id] = line
		}
	}

	orphans := 0
	for _, line := range lines {
		field, ok := spec.Components[lineType(line, spec)]
		if !ok {
			continue
		}
		parentID, _ := line[ParentIDKey].(string)
		parent, found := byID[parentID]
		if !found {
			orphans++
			continue
		}
		list, _ := parent[field].([]any)
		parent[field] = append(list, map[string]any(line))
	}

	for _, rec := range records {
		for _, field := range spec.Components {
			if _, ok := rec[field]; !ok {
				rec[field] = []any{}
			}
		}
	}
	return records, orphans
}

func lineType(line models.Record, spec *extract.BulkSpec) string {
	if t, ok := line[TypeNameKey].(string); ok && t != "" {
		return t
	}
	return spec.RecordType
}

// StripMarkers removes "__"-prefixed keys at every depth.
func StripMarkers(v any) {
	switch t := v.(type) {
	case models.Record:
		StripMarkers(map[string]any(t))
	case map[string]any:
		for k, nested := range t {
			if strings.HasPrefix(k, "__") {
				delete(t, k)
				continue
			}
			StripMarkers(nested)
		}
	case []any:
		for _, e := range t {
			StripMarkers(e)
		}
	}
}
