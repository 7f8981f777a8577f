package ops

import (
	"os"
	"path/filepath"
	"strings"
)

// Framework identifies the application framework of a repository. The set
// is closed; anything unrecognized maps to FrameworkOther.
type Framework string

const (
	FrameworkNextJS  Framework = "nextjs"
	FrameworkReact   Framework = "react"
	FrameworkVue     Framework = "vue"
	FrameworkAngular Framework = "angular"
	FrameworkNode    Framework = "node"
	FrameworkPython  Framework = "python"
	FrameworkRuby    Framework = "ruby"
	FrameworkGo      Framework = "go"
	FrameworkRust    Framework = "rust"
	FrameworkOther   Framework = "other"
)

// ParseFramework maps a configured framework name to a Framework. Unknown
// or empty names map to FrameworkOther.
func ParseFramework(s string) Framework {
	switch Framework(strings.ToLower(strings.TrimSpace(s))) {
	case FrameworkNextJS, FrameworkReact, FrameworkVue, FrameworkAngular,
		FrameworkNode, FrameworkPython, FrameworkRuby, FrameworkGo, FrameworkRust:
		return Framework(strings.ToLower(strings.TrimSpace(s)))
	default:
		return FrameworkOther
	}
}

// DefaultPort returns the port an application of this framework listens on
// when nothing else is configured.
func DefaultPort(f Framework) int {
	switch f {
	case FrameworkNextJS, FrameworkReact, FrameworkVue, FrameworkAngular, FrameworkNode:
		return 3000
	case FrameworkPython:
		return 8000
	case FrameworkRuby:
		return 3000
	default:
		return 8080
	}
}

// DetectFrameworkAt inspects a directory for framework marker files. The
// mapping is shared by the real and shadow repository backends so both
// classify identically. It never fails: unreadable directories and missing
// markers both yield FrameworkOther.
func DetectFrameworkAt(dir string) Framework {
	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		return classifyPackageJSON(string(data))
	}

	for _, marker := range []struct {
		file      string
		framework Framework
	}{
		{"requirements.txt", FrameworkPython},
		{"setup.py", FrameworkPython},
		{"pyproject.toml", FrameworkPython},
		{"Gemfile", FrameworkRuby},
		{"go.mod", FrameworkGo},
		{"Cargo.toml", FrameworkRust},
	} {
		if fileExists(filepath.Join(dir, marker.file)) {
			return marker.framework
		}
	}

	return FrameworkOther
}

// classifyPackageJSON picks the most specific JS framework named in a
// package.json. Next.js wins over React since Next.js apps depend on both.
func classifyPackageJSON(contents string) Framework {
	switch {
	case strings.Contains(contents, `"next"`):
		return FrameworkNextJS
	case strings.Contains(contents, `"react"`):
		return FrameworkReact
	case strings.Contains(contents, `"vue"`):
		return FrameworkVue
	case strings.Contains(contents, `"@angular/core"`):
		return FrameworkAngular
	default:
		return FrameworkNode
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
