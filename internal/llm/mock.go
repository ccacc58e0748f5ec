package llm

import (
	"context"
	"strings"
	"sync/atomic"
)

const mockBackendResponse = "FILE: main.py\n" +
	"```python\n" +
	"from fastapi import FastAPI\n" +
	"from fastapi.middleware.cors import CORSMiddleware\n" +
	"\n" +
	"app = FastAPI()\n" +
	"app.add_middleware(CORSMiddleware, allow_origins=[\"*\"], allow_methods=[\"*\"], allow_headers=[\"*\"])\n" +
	"\n" +
	"\n" +
	"@app.get(\"/api/health\")\n" +
	"def health():\n" +
	"    return {\"status\": \"ok\"}\n" +
	"\n" +
	"\n" +
	"if __name__ == \"__main__\":\n" +
	"    import uvicorn\n" +
	"\n" +
	"    uvicorn.run(app, host=\"0.0.0.0\", port=8080)\n" +
	"```\n" +
	"\n" +
	"FILE: requirements.txt\n" +
	"```\n" +
	"fastapi\n" +
	"uvicorn\n" +
	"```\n"

const mockFrontendResponse = "FILE: src/App.jsx\n" +
	"```javascript\n" +
	"import React, { useEffect, useState } from 'react';\n" +
	"\n" +
	"const BASE_URL = 'http://localhost:8080';\n" +
	"\n" +
	"function App() {\n" +
	"  const [status, setStatus] = useState('loading');\n" +
	"  useEffect(() => {\n" +
	"    fetch(`${BASE_URL}/api/health`).then((r) => r.json()).then((d) => setStatus(d.status));\n" +
	"  }, []);\n" +
	"  return <h1>Status: {status}</h1>;\n" +
	"}\n" +
	"\n" +
	"export default App;\n" +
	"```\n" +
	"\n" +
	"FILE: package.json\n" +
	"```json\n" +
	"{\n" +
	"  \"name\": \"frontend\",\n" +
	"  \"private\": true,\n" +
	"  \"dependencies\": {\n" +
	"    \"react\": \"^18.2.0\"\n" +
	"  }\n" +
	"}\n" +
	"```\n"

const mockPlanningResponse = `{
  "summary": "Health check service with a status page",
  "problem_definition": "Expose service health and show it in the browser",
  "needs_backend": true,
  "needs_frontend": true,
  "plan": "1. Backend: FastAPI app with /api/health\n2. Frontend: React page that shows the health status",
  "api_spec": {
    "base_url": "http://localhost:8080",
    "endpoints": [
      {"method": "GET", "path": "/api/health", "description": "Service health", "response": {"status": "string"}}
    ],
    "data_models": {}
  },
  "frontend_spec": {"pages": ["Home"], "components": ["App"], "api_calls": ["GET /api/health"], "state_management": "useState"},
  "integration": "Frontend calls the backend at http://localhost:8080"
}`

const mockJudgmentResponse = `{
  "compatible": true,
  "endpoint_analysis": {"backend_implements": ["GET /api/health"], "frontend_calls": ["GET /api/health"], "missing_in_backend": [], "missing_in_frontend": []},
  "data_format_issues": [],
  "cors_configured": true,
  "issues": [],
  "recommendations": [],
  "summary": "Backend and frontend are compatible"
}`

const mockActionPlanResponse = `{
  "goal": "Create the project skeleton",
  "actions": [
    {"action": "Create main.py", "type": "codegen", "instruction": "Create main.py with a FastAPI app", "verify": [], "comment": "skeleton", "targets": ["main.py"], "client": "backend"}
  ],
  "next_goal": ""
}`

// MockSource returns canned responses keyed by role. The orchestrator role
// answers with planning, judgment or action-plan JSON depending on the prompt.
type MockSource struct {
	role  string
	calls atomic.Int64
}

// NewMockSource creates a mock for role.
func NewMockSource(role string) *MockSource {
	return &MockSource{role: role}
}

// Calls returns how many times the mock was invoked.
func (m *MockSource) Calls() int {
	return int(m.calls.Load())
}

// Invoke returns the canned response for the role.
func (m *MockSource) Invoke(ctx context.Context, prompt string, _ ...InvokeOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.calls.Add(1)

	switch m.role {
	case "backend":
		return mockBackendResponse, nil
	case "frontend":
		return mockFrontendResponse, nil
	case "orchestrator":
		lower := strings.ToLower(prompt)
		switch {
		case strings.Contains(lower, "compatib"):
			return mockJudgmentResponse, nil
		case strings.Contains(lower, `"actions"`):
			return mockActionPlanResponse, nil
		case strings.Contains(lower, "proceed"):
			return `{"proceed": true, "alternative_actions": []}`, nil
		default:
			return mockPlanningResponse, nil
		}
	}
	return "Mock response", nil
}

// InvokeStructured decodes the canned response.
func (m *MockSource) InvokeStructured(ctx context.Context, prompt string, opts ...InvokeOption) (map[string]any, error) {
	return invokeStructured(ctx, m, prompt, opts)
}

// Describe returns "mock:<role>".
func (m *MockSource) Describe() string {
	return "mock:" + m.role
}
