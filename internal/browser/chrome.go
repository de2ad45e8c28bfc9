package browser

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// validateExecPath checks a configured Chrome binary. An empty path defers
// to chromedp's own lookup.
func validateExecPath(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("chrome executable not found at %s, set CHROME_PATH or remove browser.chrome_path to use auto-detection", path)
		}
		return fmt.Errorf("cannot access chrome executable at %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("chrome path %s is a directory", path)
	}
	return nil
}

// ensureUserDataDir creates the profile directory that keeps the login
// cookie between runs and checks that Chrome can write to it.
func ensureUserDataDir(log *zap.Logger, dirPath string) error {
	if dirPath == "" {
		log.Info("No user data directory specified, Chrome will use a throwaway profile")
		return nil
	}

	info, err := os.Stat(dirPath)
	switch {
	case os.IsNotExist(err):
		log.Info("Creating user data directory", zap.String("path", dirPath))
		if err := os.MkdirAll(dirPath, 0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
		}
	case err != nil:
		return fmt.Errorf("failed to check directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("path exists but is not a directory: %s", dirPath)
	}

	testFile := filepath.Join(dirPath, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("directory exists but is not writable: %s: %w", dirPath, err)
	}
	_ = os.Remove(testFile)
	return nil
}
