package llm

import (
	"errors"
	"testing"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
)

func TestValidateSchema(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"compatible"},
		"properties": map[string]any{
			"compatible": map[string]any{"type": "boolean"},
			"issues":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}

	tests := []struct {
		name    string
		obj     map[string]any
		wantErr bool
	}{
		{name: "valid", obj: map[string]any{"compatible": true, "issues": []any{"a"}}},
		{name: "missing required", obj: map[string]any{"issues": []any{}}, wantErr: true},
		{name: "wrong type", obj: map[string]any{"compatible": "yes"}, wantErr: true},
		{name: "wrong item type", obj: map[string]any{"compatible": false, "issues": []any{1.0}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema(tt.obj, schema)
			if tt.wantErr {
				if !errors.Is(err, daacserrors.ErrSchemaMismatch) {
					t.Errorf("expected ErrSchemaMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
