package instance

import (
	"os"
	"path/filepath"
)

// BaseDir returns $WABIZ_HOME, or ~/.wabiz when unset.
func BaseDir() string {
	if dir := os.Getenv("WABIZ_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wabiz")
}

// Dir returns the instance-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// ConfigPath returns the instance's config.toml.
func ConfigPath(name string) string {
	return filepath.Join(Dir(name), "config.toml")
}

// SocketPath returns the admin gRPC socket path for an instance.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "admin.sock")
}

// DBPath returns the conversation store path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "wabiz.db")
}

// LogDir returns the log directory for an instance.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wabizd.log")
}

// GlobalConfigPath returns the config shared by every instance.
func GlobalConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the instance directory tree with 0700 permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of instances that have a directory under BaseDir.
func List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(BaseDir(), "instances"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
