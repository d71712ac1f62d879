package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ErrNoCredentials is returned by [FindGoogleCredentials] when no
// service-account file could be located.
var ErrNoCredentials = errors.New("config: no google credentials found")

// CredentialSource tells where a credentials file was found.
type CredentialSource string

const (
	CredentialsExplicit CredentialSource = "config"
	CredentialsEnv      CredentialSource = "env"
	CredentialsSearch   CredentialSource = "search"
)

// FindGoogleCredentials locates a service-account JSON file. It checks, in
// order, the explicit path, GOOGLE_APPLICATION_CREDENTIALS, and the first
// *.json file (sorted by name) in each of searchDirs. An explicit path or
// env value that does not exist is an error rather than a fall-through.
func FindGoogleCredentials(explicit string, searchDirs []string) (string, CredentialSource, error) {
	if explicit != "" {
		if err := checkFile(explicit); err != nil {
			return "", "", err
		}
		return explicit, CredentialsExplicit, nil
	}
	if env := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); env != "" {
		if err := checkFile(env); err != nil {
			return "", "", fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS: %w", err)
		}
		return env, CredentialsEnv, nil
	}
	for _, dir := range searchDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil || len(matches) == 0 {
			continue
		}
		slices.Sort(matches)
		return matches[0], CredentialsSearch, nil
	}
	return "", "", fmt.Errorf("%w (searched %v)", ErrNoCredentials, searchDirs)
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: credentials %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: credentials %q is a directory", path)
	}
	return nil
}
