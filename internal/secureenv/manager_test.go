package secureenv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSecureEnvironment_AlwaysIncludesPath(t *testing.T) {
	m := NewManager(EnvConfig{})
	env := m.BuildSecureEnvironment()

	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildSecureEnvironment_CustomVarsWinOnConflict(t *testing.T) {
	t.Setenv("HOME", "/home/original")
	m := NewManager(EnvConfig{
		InheritSystemSafe: true,
		CustomVars:        map[string]string{"HOME": "/home/overridden"},
	})
	env := m.BuildSecureEnvironment()

	assert.Contains(t, env, "HOME=/home/overridden")
}

func TestBuildSecureEnvironment_WildcardAllowsPrefixedVars(t *testing.T) {
	t.Setenv("LC_ALL", "en_US.UTF-8")
	m := NewManager(EnvConfig{AllowedSystemVars: []string{"LC_*"}})
	env := m.BuildSecureEnvironment()

	assert.Contains(t, env, "LC_ALL=en_US.UTF-8")
}

func TestBuildSecureEnvironment_UnlistedVarsAreExcluded(t *testing.T) {
	t.Setenv("SOME_SECRET_TOKEN", "shh")
	m := NewManager(DefaultEnvConfig())
	env := m.BuildSecureEnvironment()

	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "SOME_SECRET_TOKEN="))
	}
}
