package verify

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// maxScanFileSize skips files too large to be generated source.
const maxScanFileSize = 1 << 20

type scanRules struct {
	include glob.Glob
	exclude glob.Glob
}

var trackScanRules = map[Kind]scanRules{
	KindBackend: {
		include: glob.MustCompile("*.{py,txt,json,yaml,yml}"),
		exclude: glob.MustCompile("{__pycache__,.git,venv,.venv,env,.env,node_modules}"),
	},
	KindFrontend: {
		include: glob.MustCompile("*.{jsx,js,css,html,json,ts,tsx}"),
		exclude: glob.MustCompile("{node_modules,.git,__pycache__,dist,build,.next}"),
	},
}

// Scan collects the generated files of a track from dir. Keys are slash
// separated paths relative to dir. A missing dir yields an empty map.
func Scan(dir string, kind Kind) (map[string]string, error) {
	rules, ok := trackScanRules[kind.Base()]
	if !ok {
		rules = trackScanRules[KindBackend]
	}

	files := make(map[string]string)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && rules.exclude.Match(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !rules.include.Match(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxScanFileSize {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
