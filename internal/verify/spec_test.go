package verify

import (
	"context"
	"testing"

	"github.com/Iron-Ham/daacs/internal/testutil"
)

func todoSpec() map[string]any {
	return map[string]any{
		"base_url": "http://localhost:8080",
		"endpoints": []any{
			map[string]any{"method": "get", "path": "/api/todos"},
			map[string]any{"method": "POST", "path": "/api/todos"},
			map[string]any{"method": "DELETE", "path": "/api/todos/{id}"},
			map[string]any{"method": "GET"},
			"not an endpoint",
		},
	}
}

func TestEndpoints(t *testing.T) {
	eps := Endpoints(todoSpec())
	if len(eps) != 3 {
		t.Fatalf("len(Endpoints) = %d, want 3: %v", len(eps), eps)
	}
	if eps[0].String() != "GET /api/todos" {
		t.Errorf("eps[0] = %q, want GET /api/todos", eps[0])
	}
	if Endpoints(nil) != nil {
		t.Error("Endpoints(nil) should be nil")
	}
}

func TestMissingEndpoints(t *testing.T) {
	eps := []Endpoint{{"GET", "/health"}, {"POST", "/items"}, {"PUT", "/items/1"}}

	tests := []struct {
		name        string
		source      string
		wantMissing int
	}{
		{"fastapi decorators", "@app.get(\"/health\")\n@router.post('/items')\n@app.put(\"/items/1\")", 0},
		{"express routes", "app.get('/health', h)\nrouter.post(\"/items\", h)\napp.put('/items/1', h)", 0},
		{"bare string literal", "paths = ['/health', \"/items\", `/items/1`]", 0},
		{"prefix is not enough", "@app.get(\"/health/live\")", 3},
		{"partial", "@app.get(\"/health\")", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, missing := MissingEndpoints(eps, tt.source)
			if len(missing) != tt.wantMissing {
				t.Errorf("missing = %v, want %d", missing, tt.wantMissing)
			}
		})
	}
}

func TestAPISpecComplianceCheck(t *testing.T) {
	dir := testutil.SetupProjectDir(t, map[string]string{
		"main.py":   "@app.get(\"/api/todos\")\ndef list_todos(): ...\n",
		"routes.py": "@router.post('/api/todos')\ndef create(): ...\n",
	})
	files := []string{"main.py", "routes.py"}

	t.Run("skipped without spec", func(t *testing.T) {
		if _, applies := checkAPISpecCompliance(context.Background(), Request{Dir: dir, Files: files}); applies {
			t.Error("check should not apply without an API spec")
		}
	})

	t.Run("empty spec passes", func(t *testing.T) {
		v, _ := checkAPISpecCompliance(context.Background(), Request{Dir: dir, Files: files, APISpec: map[string]any{}})
		if !v.OK || v.Reason != "No API spec to verify" {
			t.Errorf("verdict = %+v", v)
		}
	})

	t.Run("missing endpoints listed", func(t *testing.T) {
		v, _ := checkAPISpecCompliance(context.Background(), Request{Dir: dir, Files: files, APISpec: todoSpec()})
		if v.OK {
			t.Fatal("expected failure")
		}
		if v.Reason != "Missing endpoints: DELETE /api/todos/{id}" {
			t.Errorf("Reason = %q", v.Reason)
		}
	})
}
