package migrate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Script is one migration file, read verbatim. It is not modified after Read returns it.
type Script struct {
	Path     string
	Contents string
}

// ScriptSource reads scripts relative to a migrations directory through a read-only filesystem.
type ScriptSource struct {
	fs  afero.Fs
	dir string
}

// NewScriptSource returns a ScriptSource over fsys rooted at dir. Writes through fsys are refused.
func NewScriptSource(fsys afero.Fs, dir string) *ScriptSource {
	return &ScriptSource{fs: afero.NewReadOnlyFs(fsys), dir: dir}
}

// OSScripts returns a ScriptSource over the operating system filesystem.
func OSScripts(dir string) *ScriptSource {
	return NewScriptSource(afero.NewOsFs(), dir)
}

// Resolve returns the path name refers to: absolute names are used as-is, others are joined to the directory.
func (s *ScriptSource) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.dir, name)
}

// Read loads the script name. A missing, unreadable, directory or whitespace-only file yields a *ScriptReadError.
func (s *ScriptSource) Read(name string) (*Script, error) {
	path := s.Resolve(name)
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, &ScriptReadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &ScriptReadError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, &ScriptReadError{Path: path, Err: err}
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, &ScriptReadError{Path: path, Err: ErrEmptyScript}
	}
	return &Script{Path: path, Contents: string(raw)}, nil
}
