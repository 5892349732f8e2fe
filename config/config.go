// Package config holds global ggnet-core configuration, loaded via viper:
// defaults, then an optional file, then environment (GGNET_ prefix), then
// flags.
package config

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/utils"
)

// Config holds all process configuration.
type Config struct {
	// RootDir is the base directory for persistent data (image root lives
	// under RootDir/images, the database under RootDir/db).
	RootDir string `mapstructure:"root_dir"`
	// RunDir holds runtime state (PID files, in-flight upload staging is
	// under the image root, not here).
	RunDir string `mapstructure:"run_dir"`

	// TFTPRoot is the directory the TFTP daemon serves (spec.md §6).
	TFTPRoot string `mapstructure:"tftp_root"`

	// DHCPConfigPath is the file the DHCP daemon reads.
	DHCPConfigPath string `mapstructure:"dhcp_config_path"`
	// DHCPReloadCommand is invoked (via exec) to make the DHCP daemon
	// re-read DHCPConfigPath, e.g. "systemctl reload isc-dhcp-server".
	DHCPReloadCommand []string `mapstructure:"dhcp_reload_command"`

	// PortalIP is the iSCSI portal address advertised to initiators.
	// spec.md §9 leaves NIC-autodetection vs. configuration as an open
	// question; this system always takes the configured value.
	PortalIP   string `mapstructure:"portal_ip"`
	PortalPort int    `mapstructure:"portal_port"`

	// OrgName is embedded in generated IQNs: iqn.<year>.<org>:target-<slug>.
	OrgName string `mapstructure:"org_name"`

	// TargetCLIBinary is the privileged iSCSI configurator subprocess.
	TargetCLIBinary string `mapstructure:"targetcli_binary"`
	// QEMUImgBinary performs format conversion to RAW.
	QEMUImgBinary string `mapstructure:"qemu_img_binary"`

	// ConversionPoolSize bounds concurrent format-conversion workers.
	// Defaults to runtime.NumCPU() when <= 0.
	ConversionPoolSize int `mapstructure:"conversion_pool_size"`

	// Timeouts, spec.md §4.5 / §5.
	TargetCreateTimeout time.Duration `mapstructure:"target_create_timeout"`
	DHCPReloadTimeout   time.Duration `mapstructure:"dhcp_reload_timeout"`
	TFTPWriteTimeout    time.Duration `mapstructure:"tftp_write_timeout"`

	// HTTPAddr is where the API server listens.
	HTTPAddr string `mapstructure:"http_addr"`

	// DatabaseDSN is the gorm/sqlite data source.
	DatabaseDSN string `mapstructure:"database_dsn"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig controls the rotating file logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultConfig returns a Config with sensible defaults for a standalone
// deployment.
func DefaultConfig() *Config {
	return &Config{
		RootDir:             "/var/lib/ggnet",
		RunDir:              "/run/ggnet",
		TFTPRoot:            "/var/lib/tftpboot",
		DHCPConfigPath:      "/etc/dhcp/dhcpd.conf",
		DHCPReloadCommand:   []string{"systemctl", "reload", "isc-dhcp-server"},
		PortalPort:          3260,
		OrgName:             "ggnet",
		TargetCLIBinary:     "targetcli",
		QEMUImgBinary:       "qemu-img",
		ConversionPoolSize:  runtime.NumCPU(),
		TargetCreateTimeout: 60 * time.Second,
		DHCPReloadTimeout:   10 * time.Second,
		TFTPWriteTimeout:    5 * time.Second,
		HTTPAddr:            ":8080",
		DatabaseDSN:         "/var/lib/ggnet/db/ggnet.sqlite3",
		Log: LogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// ImageRoot is where promoted images and in-flight staging live
// (spec.md §6 "Persisted state layout").
func (c *Config) ImageRoot() string { return filepath.Join(c.RootDir, "images") }

// StagingDir is the upload/conversion scratch area under the image root.
func (c *Config) StagingDir() string { return filepath.Join(c.ImageRoot(), ".staging") }

// DBDir is the directory holding the sqlite file (ensured at startup).
func (c *Config) DBDir() string { return filepath.Dir(c.DatabaseDSN) }

// ImagePath returns the promoted path for a RAW image by id.
func (c *Config) ImagePath(id string) string {
	return filepath.Join(c.ImageRoot(), id+".raw")
}

// EnsureDirs creates every static directory this process owns.
func (c *Config) EnsureDirs() error {
	return utils.EnsureDirs(
		c.RootDir, c.RunDir, c.ImageRoot(), c.StagingDir(), c.DBDir(),
		c.TFTPRoot, filepath.Join(c.TFTPRoot, "machines"),
	)
}

// SetupLogging installs the process logger from c.Log.
func (c *Config) SetupLogging() error {
	return obslog.Setup(obslog.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSize,
		MaxAgeDays: c.Log.MaxAge,
		MaxBackups: c.Log.MaxBackups,
	})
}
