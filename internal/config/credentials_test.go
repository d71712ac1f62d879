package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/streamtts/internal/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFindGoogleCredentials(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.json")
	envFile := filepath.Join(dir, "env.json")
	touch(t, explicit)
	touch(t, envFile)
	touch(t, filepath.Join(dir, "key", "b-service.json"))
	touch(t, filepath.Join(dir, "key", "a-service.json"))
	searchDirs := []string{filepath.Join(dir, "empty"), filepath.Join(dir, "key")}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", envFile)

	path, src, err := config.FindGoogleCredentials(explicit, searchDirs)
	if err != nil || path != explicit || src != config.CredentialsExplicit {
		t.Errorf("explicit = %q, %q, %v", path, src, err)
	}

	path, src, err = config.FindGoogleCredentials("", searchDirs)
	if err != nil || path != envFile || src != config.CredentialsEnv {
		t.Errorf("env = %q, %q, %v", path, src, err)
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	path, src, err = config.FindGoogleCredentials("", searchDirs)
	if err != nil || filepath.Base(path) != "a-service.json" || src != config.CredentialsSearch {
		t.Errorf("search = %q, %q, %v", path, src, err)
	}

	_, _, err = config.FindGoogleCredentials("", []string{filepath.Join(dir, "empty")})
	if !errors.Is(err, config.ErrNoCredentials) {
		t.Errorf("none = %v, want ErrNoCredentials", err)
	}

	if _, _, err := config.FindGoogleCredentials(filepath.Join(dir, "missing.json"), searchDirs); err == nil {
		t.Error("missing explicit file should be an error")
	}
	if _, _, err := config.FindGoogleCredentials(dir, searchDirs); err == nil {
		t.Error("directory as credentials should be an error")
	}
}
