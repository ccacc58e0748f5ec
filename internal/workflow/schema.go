package workflow

var stringArraySchema = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

// planningSchema is the shape a planning response must have. Every field is
// optional; missing ones take the planning defaults.
var planningSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary":        map[string]any{"type": "string"},
		"needs_backend":  map[string]any{"type": "boolean"},
		"needs_frontend": map[string]any{"type": "boolean"},
		"plan":           map[string]any{"type": "string"},
		"api_spec": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"base_url": map[string]any{"type": "string"},
				"endpoints": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"method": map[string]any{"type": "string"},
							"path":   map[string]any{"type": "string"},
						},
					},
				},
			},
		},
		"frontend_spec": map[string]any{"type": "object"},
	},
}

// judgmentSchema is the shape a compatibility verdict must have.
var judgmentSchema = map[string]any{
	"type":     "object",
	"required": []any{"compatible"},
	"properties": map[string]any{
		"compatible":        map[string]any{"type": "boolean"},
		"endpoint_analysis": map[string]any{"type": "object"},
		"issues":            stringArraySchema,
		"recommendations":   stringArraySchema,
		"summary":           map[string]any{"type": "string"},
	},
}

// consultSchema is the shape of a recovery confirmation.
var consultSchema = map[string]any{
	"type":     "object",
	"required": []any{"proceed"},
	"properties": map[string]any{
		"proceed":             map[string]any{"type": "boolean"},
		"alternative_actions": map[string]any{"type": "array"},
	},
}
