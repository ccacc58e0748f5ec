package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFiles(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     map[string]string
	}{
		{
			name:     "file marker",
			response: "FILE: main.py\n```python\nprint(1)\n```\n",
			want:     map[string]string{"main.py": "print(1)"},
		},
		{
			name:     "fence names the file",
			response: "```python:backend/app.py\nx = 1\ny = 2\n```",
			want:     map[string]string{"app.py": "x = 1\ny = 2"},
		},
		{
			name:     "comment names the file",
			response: "# src/App.jsx\n```jsx\nexport default 1\n```",
			want:     map[string]string{"src/App.jsx": "export default 1"},
		},
		{
			name:     "prose heading is not a file",
			response: "# This is the backend.\n```\nx\n```",
			want:     map[string]string{},
		},
		{
			name:     "prefix and backticks stripped",
			response: "FILE: `output/backend/main.py`\n```\npass\n```",
			want:     map[string]string{"main.py": "pass"},
		},
		{
			name:     "comments inside a block are content",
			response: "FILE: main.py\n```python\n# start app\napp = 1\n```",
			want:     map[string]string{"main.py": "# start app\napp = 1"},
		},
		{
			name:     "empty block dropped",
			response: "FILE: empty.py\n```\n```",
			want:     map[string]string{},
		},
		{
			name:     "unclosed block kept",
			response: "FILE: a.py\n```\nx = 1\n",
			want:     map[string]string{"a.py": "x = 1\n"},
		},
		{
			name: "several files",
			response: "Here you go.\n\nFILE: main.py\n```python\napp = 1\n```\n\n" +
				"FILE: requirements.txt\n```\nfastapi\n```\n",
			want: map[string]string{"main.py": "app = 1", "requirements.txt": "fastapi"},
		},
		{
			name:     "no files",
			response: "I could not do that.",
			want:     map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFiles(tt.response))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"main.py", "main.py"},
		{" `src/App.jsx` ", "src/App.jsx"},
		{"output/frontend/src/App.jsx", "src/App.jsx"},
		{"frontend/package.json", "package.json"},
		{"output/notes.txt", "notes.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	err := writeFiles(dir, map[string]string{
		"main.py":     "app = 1",
		"src/App.jsx": "export default 1",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "src", "App.jsx"))
	require.NoError(t, err)
	assert.Equal(t, "export default 1", string(data))
}

func TestWriteFiles_RejectsEscapes(t *testing.T) {
	for _, name := range []string{"../evil.py", "src/../../evil.py", "/etc/evil"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			err := writeFiles(dir, map[string]string{name: "x"})
			assert.Error(t, err)
		})
	}
}
