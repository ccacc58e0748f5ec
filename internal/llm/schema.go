package llm

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
)

// ValidateSchema checks a decoded model response against a JSON Schema.
// Violations are reported as one ErrSchemaMismatch listing every error.
func ValidateSchema(obj map[string]any, schema map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(obj))
	if err != nil {
		return fmt.Errorf("failed to validate schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return daacserrors.Wrap(daacserrors.ErrSchemaMismatch, strings.Join(errs, "; "))
}
