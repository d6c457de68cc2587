// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/automarker/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// most specific first. When one of them already holds a config file only
// that directory is returned, so a new default file is never written next
// to an existing one.
func GetDefaultConfigPaths() ([]string, error) {
	userDir, err := os.UserConfigDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "resolve_user_config_dir").
			Build()
	}

	// user config dir is %AppData% on Windows, ~/Library/Application Support
	// on macOS and $XDG_CONFIG_HOME or ~/.config elsewhere
	paths := []string{filepath.Join(userDir, AppName)}

	switch runtime.GOOS {
	case "windows":
		if exe, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Dir(exe))
		}
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support", AppName))
	default:
		paths = append(paths, filepath.Join("/etc", AppName))
	}

	for _, dir := range paths {
		if fi, err := os.Stat(filepath.Join(dir, ConfigFileName)); err == nil && !fi.IsDir() {
			return []string{dir}, nil
		}
	}
	return paths, nil
}
