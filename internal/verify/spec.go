package verify

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Endpoint is one planned API route.
type Endpoint struct {
	Method string
	Path   string
}

func (ep Endpoint) String() string {
	return ep.Method + " " + ep.Path
}

// Endpoints extracts the endpoint list from a planned API spec. Entries
// without a path are skipped.
func Endpoints(apiSpec map[string]any) []Endpoint {
	raw, _ := apiSpec["endpoints"].([]any)
	var out []Endpoint
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path, _ := m["path"].(string)
		if path == "" {
			continue
		}
		method, _ := m["method"].(string)
		out = append(out, Endpoint{Method: strings.ToUpper(method), Path: path})
	}
	return out
}

// routePatterns returns the ways an endpoint may be declared in source.
func routePatterns(ep Endpoint) []string {
	m := strings.ToLower(ep.Method)
	patterns := []string{
		`"` + ep.Path + `"`,
		`'` + ep.Path + `'`,
		"`" + ep.Path + "`",
	}
	for _, recv := range []string{"@app.", "@router.", "app.", "router."} {
		patterns = append(patterns,
			fmt.Sprintf(`%s%s("%s"`, recv, m, ep.Path),
			fmt.Sprintf(`%s%s('%s'`, recv, m, ep.Path),
		)
	}
	return patterns
}

// MissingEndpoints returns the endpoints that appear nowhere in source.
func MissingEndpoints(endpoints []Endpoint, source string) (found, missing []Endpoint) {
	for _, ep := range endpoints {
		hit := false
		for _, p := range routePatterns(ep) {
			if strings.Contains(source, p) {
				hit = true
				break
			}
		}
		if hit {
			found = append(found, ep)
		} else {
			missing = append(missing, ep)
		}
	}
	return found, missing
}

func joinEndpoints(eps []Endpoint) string {
	parts := make([]string, len(eps))
	for i, ep := range eps {
		parts[i] = ep.String()
	}
	return strings.Join(parts, ", ")
}

func checkAPISpecCompliance(_ context.Context, req Request) (Verdict, bool) {
	if req.APISpec == nil {
		return Verdict{}, false
	}
	endpoints := Endpoints(req.APISpec)
	if len(endpoints) == 0 {
		return pass(APISpecCompliance, "No API spec to verify"), true
	}

	var sb strings.Builder
	for _, p := range req.paths() {
		content, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		sb.Write(content)
		sb.WriteByte('\n')
	}

	found, missing := MissingEndpoints(endpoints, sb.String())
	if len(missing) > 0 {
		return fail(APISpecCompliance, "Missing endpoints: "+joinEndpoints(missing), "found: "+joinEndpoints(found)), true
	}
	return pass(APISpecCompliance, fmt.Sprintf("All %d endpoints implemented", len(found))), true
}
