package action

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// CompileSchema compiles a JSON Schema document (as raw JSON bytes) into a
// reusable *gojsonschema.Schema for repeated Parse calls.
func CompileSchema(schemaJSON []byte) (*gojsonschema.Schema, error) {
	loader := gojsonschema.NewBytesLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("compile action schema: %w", err)
	}
	return schema, nil
}
