// Package oauthcache locates and deletes the token-cache files left
// behind by the mcp-remote OAuth bootstrap tool (an external
// collaborator), implementing the reauth file-eviction step of the
// remote-subprocess backend. Grounded on the general shape of
// internal/oauth/persistent_token_store.go: "hash derived from URL, files keyed by that hash", adapted here to a
// plain filesystem-glob layout instead of a bbolt-backed
// store.
package oauthcache

import (
	"crypto/md5" //nolint:gosec // MD5 matches the upstream tool's file-naming scheme, not used for security.
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HashURL computes the MD5 hex digest used to derive token-cache file
// names from a remote URL.
func HashURL(url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Summary is the reauth result shape returned by Evict.
type Summary struct {
	Status       string   `json:"status"`
	DeletedFiles int      `json:"deleted_files"`
	SearchedDirs []string `json:"searched_dirs"`
	Message      string   `json:"message"`
}

// Evict deletes the token-cache files for hash under baseDir:
// <hash>/tokens.json, and in each mcp-remote-* subdirectory
// <hash>_tokens.json, <hash>_client_info.json, <hash>_code_verifier.txt
// and <hash>/tokens.json. Every other file is preserved. It never returns an
// error for a missing baseDir or missing individual files — absence is
// the desired end state.
func Evict(baseDir, hash string) (Summary, error) {
	searched := []string{}
	deleted := 0

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{
				Status:       "reauth_triggered",
				DeletedFiles: 0,
				SearchedDirs: searched,
				Message:      fmt.Sprintf("token cache base directory %s does not exist; nothing to evict", baseDir),
			}, nil
		}
		return Summary{}, fmt.Errorf("oauthcache: read base dir: %w", err)
	}

	// Direct form: <base>/<hash>/tokens.json
	directDir := filepath.Join(baseDir, hash)
	searched = append(searched, directDir)
	if n, err := deleteIfExists(filepath.Join(directDir, "tokens.json")); err != nil {
		return Summary{}, err
	} else {
		deleted += n
	}

	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "mcp-remote-") {
			continue
		}
		verDir := filepath.Join(baseDir, e.Name())
		searched = append(searched, verDir)

		for _, suffix := range []string{"_tokens.json", "_client_info.json", "_code_verifier.txt"} {
			n, err := deleteIfExists(filepath.Join(verDir, hash+suffix))
			if err != nil {
				return Summary{}, err
			}
			deleted += n
		}

		nestedDir := filepath.Join(verDir, hash)
		searched = append(searched, nestedDir)
		n, err := deleteIfExists(filepath.Join(nestedDir, "tokens.json"))
		if err != nil {
			return Summary{}, err
		}
		deleted += n
	}

	return Summary{
		Status:       "reauth_triggered",
		DeletedFiles: deleted,
		SearchedDirs: searched,
		Message:      fmt.Sprintf("deleted %d token-cache file(s) for hash %s", deleted, hash),
	}, nil
}

func deleteIfExists(path string) (int, error) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("oauthcache: delete %s: %w", path, err)
	}
	return 1, nil
}

// IsUsableTokenFile reports whether a parsed token-cache file contains a
// non-empty access_token string with either a string refresh_token or a
// numeric expires_in. Evict does not consult it.
func IsUsableTokenFile(parsed map[string]interface{}) bool {
	accessToken, ok := parsed["access_token"].(string)
	if !ok || accessToken == "" {
		return false
	}
	if _, ok := parsed["refresh_token"].(string); ok {
		return true
	}
	if _, ok := parsed["expires_in"].(float64); ok {
		return true
	}
	return false
}
