package migrate

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestScriptSource_Resolve(t *testing.T) {
	src := NewScriptSource(afero.NewMemMapFs(), "drizzle/migrations")
	if got, want := src.Resolve("0001_chiang_rai_module.sql"), filepath.Join("drizzle", "migrations", "0001_chiang_rai_module.sql"); got != want {
		t.Errorf("Resolve(relative) = %q, want %q", got, want)
	}
	if got := src.Resolve("/tmp/x/../y.sql"); got != "/tmp/y.sql" {
		t.Errorf("Resolve(absolute) = %q, want /tmp/y.sql", got)
	}
}

func TestScriptSource_Read(t *testing.T) {
	mem := afero.NewMemMapFs()
	_ = afero.WriteFile(mem, "m/ok.sql", []byte("CREATE TABLE t (id INT);\n"), 0o644)
	_ = afero.WriteFile(mem, "m/blank.sql", []byte(" \n\t\n"), 0o644)
	_ = mem.MkdirAll("m/dir.sql", 0o755)
	src := NewScriptSource(mem, "m")

	script, err := src.Read("ok.sql")
	if err != nil {
		t.Fatalf("Read(ok.sql): %v", err)
	}
	if script.Contents != "CREATE TABLE t (id INT);\n" {
		t.Errorf("Contents = %q, should be verbatim", script.Contents)
	}

	testCases := []struct {
		name string
		file string
		is   error
	}{
		{"missing", "nope.sql", fs.ErrNotExist},
		{"whitespace only", "blank.sql", ErrEmptyScript},
		{"directory", "dir.sql", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := src.Read(tc.file)
			var readErr *ScriptReadError
			if !errors.As(err, &readErr) {
				t.Fatalf("err = %v, want *ScriptReadError", err)
			}
			if readErr.Path != filepath.Join("m", tc.file) {
				t.Errorf("Path = %q", readErr.Path)
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Errorf("err = %v, want errors.Is %v", err, tc.is)
			}
		})
	}
}

func TestScriptSource_ReadOnly(t *testing.T) {
	mem := afero.NewMemMapFs()
	src := NewScriptSource(mem, "m")
	if _, err := src.fs.Create("m/new.sql"); err == nil {
		t.Error("script filesystem should refuse writes")
	}
}

func TestOSScripts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	script, err := OSScripts(dir).Read("a.sql")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if script.Path != filepath.Join(dir, "a.sql") {
		t.Errorf("Path = %q", script.Path)
	}
}
