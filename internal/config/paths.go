package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains resolved application paths.
// All paths are relative to the executable directory unless overridden,
// never the current working directory.
type Paths struct {
	ExecutableDir string
	DataDir       string
	LogsDir       string

	// BackupFile is the hidden secondary license store on disk.
	BackupFile string
	// AuditFile receives append-only license audit events.
	AuditFile string
	// ConfigFile is the optional YAML configuration file.
	ConfigFile string
}

const (
	dataDirName    = "data"
	logsDirName    = "logs"
	backupFileName = ".posdata"
	auditFileName  = "license_audit.jsonl"
	configFileName = "poscli.yaml"
)

// GetPaths resolves application paths from the executable location,
// applying any overrides from the paths configuration.
func GetPaths(cfg PathsConfig) (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	exeDir := filepath.Dir(exe)

	p := &Paths{
		ExecutableDir: exeDir,
		DataDir:       cfg.DataDir,
		LogsDir:       cfg.LogsDir,
		BackupFile:    cfg.BackupFile,
		AuditFile:     cfg.AuditFile,
		ConfigFile:    filepath.Join(exeDir, configFileName),
	}

	if p.DataDir == "" {
		p.DataDir = filepath.Join(exeDir, dataDirName)
	}
	if p.LogsDir == "" {
		p.LogsDir = filepath.Join(exeDir, logsDirName)
	}
	if p.BackupFile == "" {
		p.BackupFile = filepath.Join(p.DataDir, backupFileName)
	}
	if p.AuditFile == "" {
		p.AuditFile = filepath.Join(p.DataDir, auditFileName)
	}

	return p, nil
}

// EnsureDirectories creates the data and logs directories if missing.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getConfigFilePath() string {
	exe, err := os.Executable()
	if err != nil {
		return configFileName
	}
	return filepath.Join(filepath.Dir(exe), configFileName)
}
