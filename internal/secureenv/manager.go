// Package secureenv builds the minimal, allowlisted environment handed to
// the remote MCP subprocess (C5), rather than inheriting the parent
// process's entire environment wholesale. Grounded on an
// EnvConfig/Manager/PathDiscovery shape seen elsewhere in this codebase's
// lineage.
package secureenv

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// EnvConfig controls which variables from the parent process's
// environment are allowed to pass through, plus any variables to add.
type EnvConfig struct {
	// InheritSystemSafe passes through a small fixed allowlist of
	// generally-safe variables (HOME, USER, USERNAME, SHELL, PWD).
	InheritSystemSafe bool
	// AllowedSystemVars additionally allows named variables from the
	// parent environment. A trailing "*" matches by prefix (e.g. "LC_*").
	AllowedSystemVars []string
	// CustomVars are set verbatim, overriding any inherited value.
	CustomVars map[string]string
}

// DefaultEnvConfig is the default allowlist, extended with
// the proxy-related variables the remote MCP subprocess's own HTTP client
// needs to reach the Notion endpoint through a corporate proxy.
func DefaultEnvConfig() EnvConfig {
	return EnvConfig{
		InheritSystemSafe: true,
		AllowedSystemVars: []string{
			"HOME", "USER", "USERNAME", "SHELL", "LANG", "LC_*",
			"TMPDIR", "TEMP", "TMP",
			"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
			"http_proxy", "https_proxy", "no_proxy",
			"SSL_CERT_FILE", "SSL_CERT_DIR", "NODE_EXTRA_CA_CERTS",
			"APPDATA", "LOCALAPPDATA", "XDG_CONFIG_HOME", "XDG_CACHE_HOME",
		},
		CustomVars: map[string]string{},
	}
}

// Manager builds the final env slice for a subprocess.
type Manager struct {
	cfg EnvConfig
}

// NewManager constructs a Manager with the given config.
func NewManager(cfg EnvConfig) *Manager {
	return &Manager{cfg: cfg}
}

// systemSafeVars is the small fixed core let through when InheritSystemSafe
// is set, independent of AllowedSystemVars.
var systemSafeVars = []string{"HOME", "USER", "USERNAME", "SHELL", "PWD"}

// BuildSecureEnvironment produces the env slice (in "KEY=VALUE" form) to
// hand to exec.Cmd.Env: PATH is always present (enhanced via path
// discovery), then the allowlisted subset of the parent's environment,
// then CustomVars, which win on conflict.
func (m *Manager) BuildSecureEnvironment() []string {
	out := map[string]string{
		"PATH": m.buildPath(),
	}

	if m.cfg.InheritSystemSafe {
		for _, key := range systemSafeVars {
			if v, ok := os.LookupEnv(key); ok {
				out[key] = v
			}
		}
	}

	for _, pattern := range m.cfg.AllowedSystemVars {
		if strings.HasSuffix(pattern, "*") {
			prefix := strings.TrimSuffix(pattern, "*")
			for _, kv := range os.Environ() {
				k, v, ok := strings.Cut(kv, "=")
				if ok && strings.HasPrefix(k, prefix) {
					out[k] = v
				}
			}
			continue
		}
		if v, ok := os.LookupEnv(pattern); ok {
			out[pattern] = v
		}
	}

	for k, v := range m.cfg.CustomVars {
		out[k] = v
	}

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+out[k])
	}
	return result
}

// buildPath starts from the parent's PATH (always, whatever the allowlist) and
// ensures the common locations a Node.js installed via nvm/homebrew/volta
// lives in are present, since `npx` is frequently not on a minimal PATH
// inherited by a GUI-launched process.
func (m *Manager) buildPath() string {
	existing := os.Getenv("PATH")
	extra := discoverNodePaths()

	seen := make(map[string]bool)
	parts := make([]string, 0, len(extra)+4)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		parts = append(parts, p)
	}

	for _, p := range filepath.SplitList(existing) {
		add(p)
	}
	for _, p := range extra {
		add(p)
	}

	return strings.Join(parts, string(os.PathListSeparator))
}

// discoverNodePaths returns well-known Node.js/npm installation
// directories to append to PATH, per platform.
func discoverNodePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		return []string{
			filepath.Join(appData, "npm"),
			filepath.Join(home, "AppData", "Roaming", "npm"),
		}
	case "darwin":
		return []string{
			"/opt/homebrew/bin",
			"/usr/local/bin",
			filepath.Join(home, ".nvm", "current", "bin"),
			filepath.Join(home, ".volta", "bin"),
		}
	default:
		return []string{
			"/usr/local/bin",
			"/usr/bin",
			filepath.Join(home, ".nvm", "current", "bin"),
			filepath.Join(home, ".volta", "bin"),
			filepath.Join(home, ".local", "bin"),
		}
	}
}
