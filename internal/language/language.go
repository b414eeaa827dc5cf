// Package language is the single source of truth for everything
// per-language: runtime image, command, timeout, resource limits, and
// which execution path serves it.
//
// WHY A TABLE?
// Timeouts, images, network flags and routing used to be the kind of
// thing that ends up as scattered `if lang == "java"` conditionals in
// every component. Centralising them in one declarative table means
// adding a language is a data change, not a multi-site code change.
// The sandbox, the gateway, the coordinator and the config layer all
// consult this package and nothing else.
package language

import "time"

// Route says which execution path serves a language in this deployment.
type Route string

const (
	// RouteLocal runs the code in a local Docker sandbox.
	RouteLocal Route = "local"
	// RouteGateway forwards the code to the remote execution service.
	RouteGateway Route = "gateway"
)

// Language holds everything the execution paths need to know about one
// supported language. All commands are enumerated argv slices — user code
// is NEVER part of any command line, it travels into the sandbox as file
// content.
type Language struct {
	// Tag is the canonical identifier clients use ("python", "go", ...).
	Tag string
	// Image is the Docker image for the local sandbox route.
	Image string
	// SourceFile is the filename the submitted code is written to inside
	// the sandbox workspace (its extension drives the toolchain).
	SourceFile string
	// RunCmd is the fixed argv that builds (if needed) and runs the
	// source file. Compiled languages combine both steps in one command.
	RunCmd []string
	// Timeout is the wall-clock limit for one run. Compiled languages get
	// longer timeouts than interpreted ones to absorb compile time.
	Timeout time.Duration
	// MemoryLimit is the sandbox memory ceiling in bytes.
	MemoryLimit int64
	// CPULimit is the sandbox CPU share (1.0 = one full CPU).
	CPULimit float64
	// Network enables container networking. Off by default; the only
	// legitimate use is a toolchain that must fetch artifacts on first
	// use, which is an explicitly narrower exception, not the default.
	Network bool
	// Route selects local sandbox vs remote gateway for this deployment.
	Route Route
	// Remote maps the tag to the remote execution service's identifiers.
	// Zero value means the gateway cannot serve this language.
	Remote RemoteRuntime
}

// RemoteRuntime identifies a language/version pair on the remote
// execution service.
type RemoteRuntime struct {
	Name    string
	Version string
}

// Workspace is the writable scratch directory inside every sandbox.
// The rest of the root filesystem is mounted read-only.
const Workspace = "/sandbox"

const (
	defaultMemoryLimit = 128 * 1024 * 1024 // 128 MB
	defaultCPULimit    = 0.5

	interpretedTimeout = 5 * time.Second
	compiledTimeout    = 15 * time.Second
)

// builtin is the default language set. Deployments override timeouts and
// routes through the config layer; the table itself never changes at
// runtime.
var builtin = []Language{
	{
		Tag:         "python",
		Image:       "python:3.12-alpine",
		SourceFile:  "main.py",
		RunCmd:      []string{"python3", Workspace + "/main.py"},
		Timeout:     interpretedTimeout,
		MemoryLimit: defaultMemoryLimit,
		CPULimit:    defaultCPULimit,
		Route:       RouteLocal,
		Remote:      RemoteRuntime{Name: "python", Version: "3.12.0"},
	},
	{
		Tag:         "javascript",
		Image:       "node:22-alpine",
		SourceFile:  "main.js",
		RunCmd:      []string{"node", Workspace + "/main.js"},
		Timeout:     interpretedTimeout,
		MemoryLimit: defaultMemoryLimit,
		CPULimit:    defaultCPULimit,
		Route:       RouteLocal,
		Remote:      RemoteRuntime{Name: "javascript", Version: "20.11.1"},
	},
	{
		Tag:        "go",
		Image:      "golang:1.25-alpine",
		SourceFile: "main.go",
		// `go run` compiles and runs in one step. GOCACHE lives in the
		// writable workspace because the rootfs is read-only.
		RunCmd:      []string{"env", "GOCACHE=" + Workspace + "/.cache", "go", "run", Workspace + "/main.go"},
		Timeout:     compiledTimeout,
		MemoryLimit: 512 * 1024 * 1024,
		CPULimit:    1.0,
		Route:       RouteLocal,
		Remote:      RemoteRuntime{Name: "go", Version: "1.16.2"},
	},
	{
		Tag:        "typescript",
		SourceFile: "main.ts",
		Timeout:    interpretedTimeout,
		Route:      RouteGateway,
		Remote:     RemoteRuntime{Name: "typescript", Version: "5.0.3"},
	},
	{
		Tag:        "java",
		SourceFile: "Main.java",
		Timeout:    compiledTimeout,
		Route:      RouteGateway,
		Remote:     RemoteRuntime{Name: "java", Version: "15.0.2"},
	},
	{
		Tag:        "cpp",
		SourceFile: "main.cpp",
		Timeout:    compiledTimeout,
		Route:      RouteGateway,
		Remote:     RemoteRuntime{Name: "c++", Version: "10.2.0"},
	},
	{
		Tag:        "ruby",
		SourceFile: "main.rb",
		Timeout:    interpretedTimeout,
		Route:      RouteGateway,
		Remote:     RemoteRuntime{Name: "ruby", Version: "3.0.1"},
	},
}

// Table is an immutable-by-convention lookup of supported languages.
// Construct one with NewTable so deployments can apply config overrides
// without touching the builtin defaults.
type Table struct {
	byTag map[string]Language
	tags  []string
}

// NewTable builds a Table from the builtin set with per-language
// overrides applied. Override zero values leave the default untouched.
func NewTable(overrides map[string]Override) *Table {
	t := &Table{byTag: make(map[string]Language, len(builtin))}
	for _, lang := range builtin {
		if ov, ok := overrides[lang.Tag]; ok {
			if ov.Timeout > 0 {
				lang.Timeout = ov.Timeout
			}
			if ov.Route != "" {
				lang.Route = ov.Route
			}
			if ov.Image != "" {
				lang.Image = ov.Image
			}
		}
		t.byTag[lang.Tag] = lang
		t.tags = append(t.tags, lang.Tag)
	}
	return t
}

// Override carries the deployment-tunable subset of a Language.
type Override struct {
	Timeout time.Duration
	Route   Route
	Image   string
}

// Lookup returns the language for a tag. The boolean is false for
// unsupported tags — callers translate that to a rejected input.
func (t *Table) Lookup(tag string) (Language, bool) {
	lang, ok := t.byTag[tag]
	return lang, ok
}

// Tags returns all supported language tags in table order.
func (t *Table) Tags() []string {
	out := make([]string, len(t.tags))
	copy(out, t.tags)
	return out
}

// LocalLanguages returns every language routed to the local sandbox,
// used at startup to pre-pull images.
func (t *Table) LocalLanguages() []Language {
	var out []Language
	for _, tag := range t.tags {
		if lang := t.byTag[tag]; lang.Route == RouteLocal {
			out = append(out, lang)
		}
	}
	return out
}
