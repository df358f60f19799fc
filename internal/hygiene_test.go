package internal

import (
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const modulePath = "github.com/Iron-Ham/txguard"

// projectRoot returns the module root whether tests run from internal/ or the root.
func projectRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if filepath.Base(wd) == "internal" {
		return filepath.Dir(wd)
	}
	return wd
}

// goFiles walks internal/ and cmd/ and calls fn for every Go source file.
func goFiles(t *testing.T, root string, fn func(rel string, content []byte)) {
	t.Helper()
	for _, dir := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") || d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			fn(rel, content)
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to walk %s: %v", dir, err)
		}
	}
}

// TestInternalImports checks that every module-local import resolves to a
// package directory in this tree.
func TestInternalImports(t *testing.T) {
	root := projectRoot(t)
	fset := token.NewFileSet()

	goFiles(t, root, func(rel string, content []byte) {
		f, err := parser.ParseFile(fset, rel, content, parser.ImportsOnly)
		if err != nil {
			t.Errorf("%s: %v", rel, err)
			return
		}
		for _, imp := range f.Imports {
			path, _ := strconv.Unquote(imp.Path.Value)
			local, ok := strings.CutPrefix(path, modulePath+"/")
			if !ok {
				continue
			}
			if info, err := os.Stat(filepath.Join(root, local)); err != nil || !info.IsDir() {
				t.Errorf("%s imports %s, which is not a package in this module", rel, path)
			}
		}
	})
}
