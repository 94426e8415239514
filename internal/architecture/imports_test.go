package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importRef struct {
	file string
	imp  string
}

// walkImports calls fn for every import of every .go file under internal/.
func walkImports(t *testing.T, fn func(rel, imp string)) string {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "node_modules", ".gocache":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			fn(rel, imp)
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return modulePath
}

func TestImportBoundaries(t *testing.T) {
	var refs []importRef
	modulePath := walkImports(t, func(rel, imp string) {
		refs = append(refs, importRef{file: rel, imp: imp})
	})

	var b strings.Builder
	for _, r := range refs {
		for _, bad := range disallowedImports(modulePath, layerFor(r.file)) {
			if strings.HasPrefix(r.imp, bad) {
				fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", r.file, r.imp, bad)
				break
			}
		}
	}
	if b.Len() > 0 {
		t.Fatal("import boundary violations:\n" + b.String())
	}
}

// The derivation engine stays pure: standard library, the domain model,
// platform helpers and the tuning parser only.
func TestEngineHasNoInfrastructureImports(t *testing.T) {
	var refs []importRef
	modulePath := walkImports(t, func(rel, imp string) {
		if strings.HasPrefix(rel, "internal/modules/cdg/steps/") && !strings.HasSuffix(rel, "_test.go") {
			refs = append(refs, importRef{file: rel, imp: imp})
		}
	})
	allowed := []string{
		"gopkg.in/yaml.v3",
		modulePath + "/internal/domain/",
		modulePath + "/internal/platform/",
	}

	var b strings.Builder
	for _, r := range refs {
		if !strings.Contains(strings.SplitN(r.imp, "/", 2)[0], ".") {
			continue
		}
		ok := false
		for _, prefix := range allowed {
			if strings.HasPrefix(r.imp, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			fmt.Fprintf(&b, "- %s imports %q\n", r.file, r.imp)
		}
	}
	if b.Len() > 0 {
		t.Fatal("engine imports infrastructure:\n" + b.String())
	}
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	case strings.HasPrefix(rel, "internal/modules/"):
		return "modules"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	switch layer {
	case "platform":
		return []string{
			modulePath + "/internal/modules/",
			modulePath + "/internal/http/",
			modulePath + "/internal/data/",
			modulePath + "/internal/app",
		}
	case "domain":
		return []string{
			modulePath + "/internal/modules/",
			modulePath + "/internal/http/",
			modulePath + "/internal/data/",
			modulePath + "/internal/clients/",
			modulePath + "/internal/app",
		}
	case "data":
		return []string{
			modulePath + "/internal/modules/",
			modulePath + "/internal/http/",
			modulePath + "/internal/app",
		}
	case "modules":
		return []string{
			modulePath + "/internal/http/",
			modulePath + "/internal/app",
		}
	default:
		return nil
	}
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
