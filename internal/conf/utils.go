// conf/utils.go helpers for locating configuration
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

const appDirName = "tabla-push"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// If one of them already holds a config file, only that directory is returned.
func GetDefaultConfigPaths() []string {
	var configPaths []string

	if configDir, err := os.UserConfigDir(); err == nil {
		configPaths = append(configPaths, filepath.Join(configDir, appDirName))
	}
	if runtime.GOOS != "windows" {
		configPaths = append(configPaths, filepath.Join("/etc", appDirName))
	}
	configPaths = append(configPaths, ".")

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}
		}
	}

	return configPaths
}

// GetLogger returns the configuration module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}
