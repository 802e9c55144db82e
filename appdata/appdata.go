// Package appdata resolves the per-user directory an application keeps its
// state in, following each operating system's convention.
package appdata

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"

	"github.com/adrg/xdg"
)

// Dir returns the application data directory for the running operating
// system. On unixlikes this honours XDG_CONFIG_HOME; roaming selects the
// synchronized profile on Windows and means nothing elsewhere.
func Dir(appName string, roaming bool) string {
	switch runtime.GOOS {
	case "windows", "darwin", "plan9":
		return GetDataDir(runtime.GOOS, appName, roaming)
	}
	appName = strings.TrimPrefix(appName, ".")
	if appName == "" {
		return "."
	}
	return filepath.Join(xdg.ConfigHome, strings.ToLower(appName))
}

// GetDataDir resolves the conventional data directory for any operating
// system by name. Empty and "." app names resolve to the current directory.
func GetDataDir(goos, appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}
	// strip a leading period, as in dotfile-style names
	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]
	var homeDir string
	if usr, err := user.Current(); err == nil {
		homeDir = usr.HomeDir
	}
	if homeDir == "" {
		homeDir = os.Getenv("HOME")
	}
	switch goos {
	case "windows":
		// roaming profiles follow the user between machines
		dir := os.Getenv("LOCALAPPDATA")
		if roaming || dir == "" {
			dir = os.Getenv("APPDATA")
		}
		if dir != "" {
			return filepath.Join(dir, appNameUpper)
		}
	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library", "Application Support",
				appNameUpper)
		}
	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}
	default:
		if homeDir != "" {
			return filepath.Join(homeDir, ".config", appNameLower)
		}
	}
	return "."
}
