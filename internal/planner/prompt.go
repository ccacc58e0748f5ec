package planner

import (
	"encoding/json"
	"strings"
)

const promptHeader = "You are the Orchestrator. Output ONLY JSON in the exact schema below. " +
	"No markdown, no code fences. If you cannot follow, output nothing.\n"

const testModeConstraints = "DAACS TEST MODE is active. Apply mandatory constraints:\n" +
	"- At most ONE file per turn.\n" +
	"- Do NOT generate HTML/CSS/JS or other web assets.\n" +
	"- Prefer CLI-based Python; keep outputs concise (<=200 lines).\n" +
	"- If generating tests, create ONLY ONE dummy test (tests/test_basic.py).\n" +
	"- For files.txt updates, use: " + ListingCommand + "\n"

const prodModeConstraints = "DAACS PROD MODE is active. Constraints disabled; full codegen allowed. " +
	"Still keep responses valid JSON only."

type schemaHint struct {
	Goal     string   `json:"goal"`
	Actions  []Action `json:"actions"`
	NextGoal string   `json:"next_goal"`
}

// formatPrompt builds the action-planning prompt for goal.
func formatPrompt(goal string, constraints bool) string {
	hint := schemaHint{
		Goal: goal,
		Actions: []Action{{
			Action:      DevInstruction,
			Type:        TypeShell,
			Instruction: "natural language instruction for the assistant CLI",
			Verify:      []string{"files_exist:" + ListingFile},
			Comment:     "why this step",
			Targets:     []string{ListingFile},
			Client:      ClientFrontend,
		}},
		NextGoal: "optional next target or empty",
	}
	hintJSON, _ := json.Marshal(hint)

	var sb strings.Builder
	sb.WriteString(promptHeader)
	if constraints {
		sb.WriteString(testModeConstraints)
	} else {
		sb.WriteString(prodModeConstraints)
	}
	sb.WriteString("\n")
	sb.Write(hintJSON)
	return sb.String()
}

// planSchema is the JSON Schema a planner response must satisfy.
var planSchema = map[string]any{
	"type":     "object",
	"required": []any{"actions"},
	"properties": map[string]any{
		"goal":      map[string]any{"type": "string"},
		"next_goal": map[string]any{"type": "string"},
		"actions": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"instruction"},
				"properties": map[string]any{
					"action":      map[string]any{"type": "string"},
					"type":        map[string]any{"type": "string"},
					"instruction": map[string]any{"type": "string", "minLength": 1},
					"verify":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"comment":     map[string]any{"type": "string"},
					"targets":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"client":      map[string]any{"type": "string"},
				},
			},
		},
	},
}
