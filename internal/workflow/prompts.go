package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Iron-Ham/daacs/internal/replan"
	"github.com/Iron-Ham/daacs/internal/util"
	"github.com/Iron-Ham/daacs/internal/verify"
)

// sampleLines is how many leading lines of each file the judgment sees.
const sampleLines = 100

// PlanningPromptTemplate asks the orchestrator for a multi-view plan.
// Arguments: goal.
const PlanningPromptTemplate = `You are a senior project architect applying multi-view analysis.

=== GOAL ===
%s

=== ANALYSIS FRAMEWORK ===
Analyze from these perspectives at once:
1. PM view: scope and deliverables
2. Tech lead view: architecture, API design, data flow
3. UX view: user interactions and frontend requirements
4. Integration view: how the components connect and communicate

=== REQUIRED OUTPUT ===
[1] SUMMARY: one line describing the approach.
[2] PROBLEM DEFINITION: what exactly must be built and the key technical challenges.
[3] ARCHITECTURE DECISION: whether a backend and a frontend are needed, with reasons.
[4] API SPECIFICATION (if a backend is needed): every endpoint with method, path,
    request and response schema.
[5] FRONTEND SPECIFICATION (if a frontend is needed): pages, components, the
    endpoints each component calls, state management.
[6] INTEGRATION CONTRACT: base URL, CORS configuration, authentication.

=== JSON OUTPUT ===
Respond ONLY with this JSON object:
{
  "summary": "One-line solution summary",
  "problem_definition": "What needs to be built",
  "needs_backend": true,
  "needs_frontend": true,
  "plan": "Detailed technical plan",
  "api_spec": {
    "base_url": "http://localhost:8080",
    "endpoints": [
      {"method": "GET", "path": "/api/resource", "description": "Endpoint purpose", "request_body": {}, "response": {}}
    ],
    "data_models": [{"name": "ModelName", "fields": {"field": "type"}}]
  },
  "frontend_spec": {
    "pages": ["page1"],
    "components": ["component1"],
    "api_calls": ["GET /api/resource"],
    "state_management": "React useState/Context"
  },
  "integration": {"cors_origins": ["http://localhost:5173"], "auth_method": "none"}
}
`

// JudgmentPromptTemplate asks the orchestrator to compare both tracks.
// Arguments: API spec, backend samples, frontend samples, backend status,
// frontend status.
const JudgmentPromptTemplate = `You are a senior technical reviewer and integration specialist. Perform a deep compatibility analysis between the backend and frontend code.

=== ORIGINAL API SPECIFICATION ===
%s

=== BACKEND CODE (samples) ===
%s

=== FRONTEND CODE (samples) ===
%s

=== STATUS ===
Backend Status: %s
Frontend Status: %s

=== VERIFICATION CHECKLIST ===
1. API endpoint matching: does the backend implement every endpoint of the
   spec, does the frontend call every one, and do methods and paths match?
2. Request and response format: do request bodies and response shapes agree,
   including field names and types?
3. Base URL configuration: does the frontend target the backend URL (for
   example http://localhost:8080) and is CORS configured in the backend?
4. Data flow: can the frontend consume every backend response?

Respond in JSON format:
{
  "compatible": true,
  "endpoint_analysis": {
    "backend_implements": ["GET /api/..."],
    "frontend_calls": ["GET /api/..."],
    "missing_in_backend": [],
    "missing_in_frontend": []
  },
  "data_format_issues": [],
  "cors_configured": true,
  "issues": ["detailed issue"],
  "recommendations": ["recommendation"],
  "summary": "Detailed compatibility summary"
}
`

// ConsultPromptTemplate asks a CLI orchestrator to confirm the recovery
// actions. Arguments: failure type, suggested actions.
const ConsultPromptTemplate = `Previous failure: %s
Suggested actions: %s

Should we proceed with these actions or suggest alternatives?
Respond in JSON format:
{
  "proceed": true,
  "alternative_actions": []
}
`

const backendPromptTemplate = `You are a senior backend developer with a tech lead mindset.

=== GOAL ===
%s
%s
=== ORCHESTRATOR PLAN ===
%s

=== API SPECIFICATION (MUST IMPLEMENT EXACTLY) ===
%s
%s
=== STRICT ROLE SEPARATION ===
You are the BACKEND developer ONLY.
- Generate ONLY backend files (Python, requirements.txt)
- Do NOT generate frontend files (React, HTML, CSS, JS)
- The frontend is handled by a separate developer

=== FILE CREATION PATH ===
Create ALL files in this exact directory:
%s

Do NOT create files anywhere else.

=== CODING RULES ===
1. Target Python 3.12 and Pydantic V2 (from_attributes=True, not orm_mode)
2. Keep the code clear and simple, with no unnecessary abstractions
3. Use consistent names
4. Generate ALL backend files for a runnable project
5. Configure CORS for the frontend
6. Do NOT create markdown files, code only
7. Write all code, comments and string literals in English

=== IMPLEMENTATION CHECKLIST ===
- Every endpoint of the API spec with the exact path and method
- Request and response schemas as specified
- All data models
- Error handling
- requirements.txt

=== RUNNABLE SERVER ===
The server MUST start with "python main.py". End main.py with:

if __name__ == "__main__":
    import uvicorn
    uvicorn.run(app, host="0.0.0.0", port=8080)

Generate a complete Python/FastAPI project in %s.
`

const frontendPromptTemplate = `You are a senior frontend developer with a UX-first mindset.

=== GOAL ===
%s
%s
=== ORCHESTRATOR PLAN ===
%s
%s
=== BACKEND FILES ===
%s

=== API SPECIFICATION (MUST CALL THESE) ===
%s

=== FRONTEND SPECIFICATION ===
%s

=== UX PRINCIPLES ===
1. Intuitive and responsive UI
2. Loading states during API calls
3. User-friendly error messages
4. Visual feedback for actions

=== STRICT ROLE SEPARATION ===
You are the FRONTEND developer ONLY.
- Generate ONLY frontend files (React, CSS, HTML, JS)
- Do NOT generate backend files (Python, requirements.txt)
- The backend is handled by a separate developer

=== FILE CREATION PATH ===
Create ALL files in this exact directory:
%s

For example %s/package.json, %s/index.html, %s/src/main.jsx, %s/src/App.jsx.
Do NOT create files anywhere else.

=== CODING RULES ===
1. React 18.2 and Vite 4
2. Clean, readable components with minimal dependencies
3. Uniform styling and naming
4. Generate ALL frontend files for a runnable project
5. Always include App.css and index.css
6. Do NOT create markdown files, code only
7. Write all code, comments and string literals in English

=== IMPLEMENTATION CHECKLIST ===
- All pages and components of the frontend spec
- Calls to every API endpoint
- BASE_URL set to http://localhost:8080
- Loading and error states
- index.html, main.jsx, App.jsx, vite.config.js, package.json

Generate a complete Vite + React project in %s.
`

// modelInstructions returns the agentic-mode block for the track's source,
// chosen by the source description (e.g. "cli_assistant:claude_code").
func modelInstructions(source, track string) string {
	lower := strings.ToLower(source)
	switch {
	case strings.Contains(lower, "claude"):
		s := "\n=== AGENTIC MODE (CLAUDE) ===\n" +
			"You have full file creation permissions.\n" +
			"Create all files in the working directory.\n" +
			"You decide the best file structure for this project.\n" +
			"Do NOT ask for confirmation, just create the files.\n" +
			"Do NOT create .md files.\n"
		if track == TrackFrontend {
			s += "If you create vite.config.js, set server.open to false.\n"
		}
		return s
	case strings.Contains(lower, "gemini"):
		return "\n=== AGENTIC MODE (GEMINI) ===\n" +
			"You have file creation permissions.\n" +
			"Create all files in the working directory.\n" +
			"You decide the best file structure for this project.\n" +
			"Generate complete files, not snippets.\n"
	case strings.Contains(lower, "codex"):
		return "\n=== AGENTIC MODE (CODEX) ===\n" +
			"Create all files in the working directory.\n" +
			"Use your file creation tools.\n" +
			"You decide the best file structure for this project.\n"
	default:
		return "\n=== FILE CREATION ===\n" +
			"Create all files in the working directory.\n"
	}
}

// failureContext renders the previous failure reasons as a mandatory fix list.
func failureContext(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n=== PREVIOUS FAILURE REASONS (FIX THESE) ===\n")
	sb.WriteString("The previous attempt failed verification. You MUST fix these issues:\n")
	for _, r := range reasons {
		sb.WriteString("- " + r + "\n")
	}
	sb.WriteString("\nAddress each issue above in the new code.\n")
	return sb.String()
}

// trackReason tags a verifier reason with the track it came from.
func trackReason(track, reason string) string {
	return track + ": " + reason
}

// trackFailures lists what one track's generator must fix: its own latest
// failed checks, then the untagged notes left by replanning. Reasons tagged
// for either track are skipped; the other track's never apply.
func trackFailures(st *State, track string) []string {
	reasons := verify.Result{Verdicts: st.Track(track).Verdicts}.FailedReasons()
	for _, line := range st.FailureSummary {
		if strings.HasPrefix(line, trackReason(TrackBackend, "")) || strings.HasPrefix(line, trackReason(TrackFrontend, "")) {
			continue
		}
		reasons = append(reasons, line)
	}
	return reasons
}

// indentJSON renders v as indented JSON, or empty when v has no content.
func indentJSON(v map[string]any, empty string) string {
	if len(v) == 0 {
		return empty
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return empty
	}
	return string(data)
}

// BuildPlanningPrompt renders the planning prompt for goal.
func BuildPlanningPrompt(goal string) string {
	return fmt.Sprintf(PlanningPromptTemplate, goal)
}

// BuildTrackPrompt renders the generator prompt for a track writing into dir.
func BuildTrackPrompt(track string, st *State, dir string) string {
	source := st.LLMSources[track]
	fix := failureContext(trackFailures(st, track))
	apiSpec := indentJSON(st.APISpec, "No API spec provided")

	if track == TrackFrontend {
		backendFiles := fmt.Sprintf("%v", st.Backend.FileNames())
		return fmt.Sprintf(frontendPromptTemplate,
			st.CurrentGoal, fix, st.OrchestratorPlan, modelInstructions(source, track),
			backendFiles, apiSpec, indentJSON(st.FrontendSpec, "No frontend spec provided"),
			dir, dir, dir, dir, dir, dir)
	}
	return fmt.Sprintf(backendPromptTemplate,
		st.CurrentGoal, fix, st.OrchestratorPlan, apiSpec, modelInstructions(source, track), dir, dir)
}

// codeSamples renders the first sampleLines lines of every file as JSON.
func codeSamples(files map[string]string) string {
	samples := make(map[string]string, len(files))
	for name, content := range files {
		samples[name] = util.FirstLines(content, sampleLines)
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// BuildJudgmentPrompt renders the compatibility prompt from both tracks.
func BuildJudgmentPrompt(st *State) string {
	return fmt.Sprintf(JudgmentPromptTemplate,
		indentJSON(st.APISpec, "No API spec"),
		codeSamples(st.Backend.Files),
		codeSamples(st.Frontend.Files),
		st.Backend.Status,
		st.Frontend.Status,
	)
}

// BuildConsultPrompt renders the recovery confirmation prompt.
func BuildConsultPrompt(ft replan.FailureType, actions []replan.ActionTemplate) string {
	data, err := json.Marshal(actions)
	if err != nil {
		data = []byte("[]")
	}
	name := string(ft)
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf(ConsultPromptTemplate, name, data)
}
