package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const moduleName = "tallyhub"

// layerRule lists what a layer of a context module may import besides the
// standard library. Paths starting with "./" are relative to the module root.
type layerRule struct {
	allowed    []string
	thirdParty bool
}

var layerRules = map[string]layerRule{
	"domain": {
		allowed: []string{"./domain"},
	},
	"ports": {
		allowed: []string{"./domain", moduleName + "/internal/shared"},
	},
	"application": {
		allowed: []string{
			"./application",
			"./domain",
			"./ports",
			"github.com/shopspring/decimal",
			"go.opentelemetry.io/otel",
		},
	},
	"transport": {
		allowed: []string{"./transport", "github.com/go-playground/validator/v10"},
	},
	"adapters": {
		allowed: []string{
			"./adapters",
			"./application",
			"./domain",
			"./ports",
			"./transport",
			moduleName + "/internal/shared",
		},
		thirdParty: true,
	},
}

// runtimeRoots are composition and process packages no context may reach into.
var runtimeRoots = []string{
	moduleName + "/internal/platform",
	moduleName + "/internal/app",
	moduleName + "/cmd",
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})

	fmt.Printf("%d boundary violations:\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  %s:%d %q: %s\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		// contexts/<context>/<module>/<layer>/...
		parts := strings.Split(filepath.ToSlash(path), "/")
		if len(parts) < 4 {
			return nil
		}
		modulePath := strings.Join(append([]string{moduleName}, parts[:3]...), "/")
		layer := ""
		if len(parts) > 4 {
			layer = parts[3]
		}
		violations = append(violations, checkFile(path, modulePath, layer)...)
		return nil
	})
	return violations
}

func checkFile(path string, modulePath string, layer string) []violation {
	name := filepath.ToSlash(path)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: name, Line: 1, Rule: "file does not parse"}}
	}

	var violations []violation
	report := func(line int, importPath string, rule string) {
		violations = append(violations, violation{File: name, Line: line, Import: importPath, Rule: rule})
	}

	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		line := fset.Position(imp.Pos()).Line

		if hasPrefix(importPath, moduleName+"/contexts") && !hasPrefix(importPath, modulePath) {
			report(line, importPath, "modules must not import each other")
		}
		for _, runtime := range runtimeRoots {
			if hasPrefix(importPath, runtime) {
				report(line, importPath, "context code must not depend on runtime wiring")
			}
		}

		rule, ok := layerRules[layer]
		if !ok || isStdlib(importPath) {
			continue
		}
		if isAllowed(importPath, modulePath, rule.allowed) {
			continue
		}
		if rule.thirdParty && !hasPrefix(importPath, moduleName) {
			continue
		}
		report(line, importPath, layer+" may not import this package")
	}
	return violations
}

func isAllowed(importPath string, modulePath string, allowed []string) bool {
	for _, prefix := range allowed {
		if strings.HasPrefix(prefix, "./") {
			prefix = modulePath + prefix[1:]
		}
		if hasPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".") && first != moduleName
}
