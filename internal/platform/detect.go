package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "voxscribe"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

// Target is the os_arch directory name used for packaged engine binaries.
func (r Runtime) Target() string {
	return r.OS + "_" + r.Arch
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

func DefaultModelDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	dataDir, err := defaultDataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

// DefaultConfigFileFor returns where an implicit config.yml is looked up.
func DefaultConfigFileFor(goos, homeDir, xdgConfigHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgConfigHome != "" {
			return filepath.Join(xdgConfigHome, appName, "config.yml"), nil
		}
		return filepath.Join(homeDir, ".config", appName, "config.yml"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appName, "config.yml"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
}

// ResolveConfigFile returns override when set, otherwise the default
// config.yml if one exists. An empty result means no file is read.
func ResolveConfigFile(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}

	path, err := DefaultConfigFileFor(runtime.GOOS, homeDir, os.Getenv("XDG_CONFIG_HOME"))
	if err != nil {
		return "", nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

// ResolveStagingDir returns the directory staged clips are written to,
// creating it when needed. Empty override means the system temp dir.
func ResolveStagingDir(override string) (string, error) {
	if override == "" {
		return os.TempDir(), nil
	}

	dir := filepath.Clean(override)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create staging directory %s: %w", dir, err)
	}
	return dir, nil
}

func defaultDataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, appName), nil
		}
		return filepath.Join(homeDir, ".local", "share", appName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
