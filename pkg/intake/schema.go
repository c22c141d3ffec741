package intake

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateJSONSchema checks payload against a trigger's JSON schema.
func validateJSONSchema(payload any, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(messages, "; "))
	}

	return nil
}
