package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig admin api configuration
type WebConfig struct {
	Enabled bool     `yaml:"enabled"`
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	ApiKeys []string `yaml:"api_keys"`
}

// DBConfig database configuration
type DBConfig struct {
	Type     string `yaml:"type"` // sqlite or postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"` // database name, or file name for sqlite
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode"` // development or production
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// BotConfig chat bot configuration
type BotConfig struct {
	Enabled bool `yaml:"enabled"`
	// AllowedUsers is the static allow-list of chat ids (phone numbers).
	AllowedUsers []string `yaml:"allowed_users"`
	StoreFile    string   `yaml:"store_file"`
	PrintQR      bool     `yaml:"print_qr"`
}

// ReminderConfig reminder scheduler configuration
type ReminderConfig struct {
	Cron                    string `yaml:"cron"`
	PrescriptionLeadDays    int    `yaml:"prescription_lead_days"`
	StockAlertDays          int    `yaml:"stock_alert_days"`
	HorizonDays             int    `yaml:"horizon_days"`
	DefaultNotifyBeforeDays int    `yaml:"default_notify_before_days"`
	Workers                 int    `yaml:"workers"`
	SendTimeoutSeconds      int    `yaml:"send_timeout_seconds"`
}

// MedicineConfig is one entry of the fixed medicine list.
type MedicineConfig struct {
	Name      string  `yaml:"name"`
	AltName   string  `yaml:"alt_name"`
	DailyDose float64 `yaml:"daily_dose"`
}

// AppConfig application configuration
type AppConfig struct {
	System    SysConfig        `yaml:"system"`
	Web       WebConfig        `yaml:"web"`
	Database  DBConfig         `yaml:"database"`
	Logger    LogConfig        `yaml:"logger"`
	Bot       BotConfig        `yaml:"bot"`
	Reminder  ReminderConfig   `yaml:"reminder"`
	Medicines []MedicineConfig `yaml:"medicines"`
}

// GetLogDir returns the log directory under the workdir.
func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

// GetDataDir returns the data directory under the workdir.
func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

// DatabaseFile returns the sqlite database path. Relative names are resolved
// against the data directory.
func (c *AppConfig) DatabaseFile() string {
	if filepath.IsAbs(c.Database.Name) {
		return c.Database.Name
	}
	return filepath.Join(c.GetDataDir(), c.Database.Name)
}

// BotStoreFile returns the path of the chat session store.
func (c *AppConfig) BotStoreFile() string {
	if filepath.IsAbs(c.Bot.StoreFile) {
		return c.Bot.StoreFile
	}
	return filepath.Join(c.GetDataDir(), c.Bot.StoreFile)
}

// InitDirs creates the working directories.
func (c *AppConfig) InitDirs() error {
	for _, dir := range []string{c.GetLogDir(), c.GetDataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	if c.Reminder.Cron == "" {
		return errors.New("reminder cron expression is required")
	}
	seen := make(map[string]struct{}, len(c.Medicines))
	for _, m := range c.Medicines {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return errors.New("medicine name is required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate medicine %q", name)
		}
		seen[name] = struct{}{}
		if m.DailyDose < 0 {
			return fmt.Errorf("medicine %q has negative daily dose", name)
		}
	}
	return nil
}

// DefaultMedicines is the household medicine list used when the config file
// does not define one.
var DefaultMedicines = []MedicineConfig{
	{Name: "Alzepil", AltName: "Donepezil", DailyDose: 1.0},
	{Name: "PK-Merz 100", AltName: "Amantadine", DailyDose: 2.0},
	{Name: "Tiapride 100", DailyDose: 1.5},
	{Name: "Clonazepam 2", AltName: "Clonazepam", DailyDose: 0.5},
	{Name: "Madopar 250", AltName: "Levodopa", DailyDose: 8.0},
	{Name: "Memantine", AltName: "Akatinol", DailyDose: 1.0},
	{Name: "Seroquel", AltName: "Quetiapine", DailyDose: 0.25},
}

// DefaultAppConfig returns the built-in configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "MedsBot",
			Location: "Europe/Moscow",
			Workdir:  "/var/medsbot",
			Debug:    false,
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    1880,
		},
		Database: DBConfig{
			Type:     "sqlite",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "meds.db",
			User:     "medsbot",
			Passwd:   "",
			MaxConn:  20,
			IdleConn: 5,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
		},
		Bot: BotConfig{
			Enabled:   true,
			StoreFile: "whatsapp.db",
			PrintQR:   true,
		},
		Reminder: ReminderConfig{
			Cron:                    "0 0 * * *",
			PrescriptionLeadDays:    30,
			StockAlertDays:          5,
			HorizonDays:             30,
			DefaultNotifyBeforeDays: 14,
			Workers:                 4,
			SendTimeoutSeconds:      15,
		},
	}
}

// LoadConfig reads the YAML file (when it exists), fills defaults and applies
// MEDSBOT_* environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", cfile)
			}
		case os.IsNotExist(err):
			// built-in defaults
		default:
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
	}

	applyEnv(cfg)
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fillDefaults(cfg *AppConfig) {
	def := DefaultAppConfig()
	if cfg.System.Location == "" {
		cfg.System.Location = def.System.Location
	}
	if cfg.System.Workdir == "" {
		cfg.System.Workdir = def.System.Workdir
	}
	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	if cfg.Database.Type == "" {
		cfg.Database.Type = def.Database.Type
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = def.Database.Name
	}
	if cfg.Logger.Filename == "" {
		cfg.Logger.Filename = path.Join(cfg.GetLogDir(), "medsbot.log")
	}
	if cfg.Bot.StoreFile == "" {
		cfg.Bot.StoreFile = def.Bot.StoreFile
	}
	r := &cfg.Reminder
	if r.Cron == "" {
		r.Cron = def.Reminder.Cron
	}
	if r.PrescriptionLeadDays <= 0 {
		r.PrescriptionLeadDays = def.Reminder.PrescriptionLeadDays
	}
	if r.StockAlertDays <= 0 {
		r.StockAlertDays = def.Reminder.StockAlertDays
	}
	if r.HorizonDays <= 0 {
		r.HorizonDays = def.Reminder.HorizonDays
	}
	if r.DefaultNotifyBeforeDays <= 0 {
		r.DefaultNotifyBeforeDays = def.Reminder.DefaultNotifyBeforeDays
	}
	if r.Workers <= 0 {
		r.Workers = def.Reminder.Workers
	}
	if r.SendTimeoutSeconds <= 0 {
		r.SendTimeoutSeconds = def.Reminder.SendTimeoutSeconds
	}
	if len(cfg.Medicines) == 0 {
		cfg.Medicines = append([]MedicineConfig(nil), DefaultMedicines...)
	}
}

func applyEnv(cfg *AppConfig) {
	setEnvValue("MEDSBOT_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvValue("MEDSBOT_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("MEDSBOT_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvBoolValue("MEDSBOT_WEB_ENABLED", &cfg.Web.Enabled)
	setEnvValue("MEDSBOT_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("MEDSBOT_WEB_PORT", &cfg.Web.Port)
	setEnvListValue("MEDSBOT_WEB_API_KEYS", &cfg.Web.ApiKeys)

	setEnvValue("MEDSBOT_DB_TYPE", &cfg.Database.Type)
	setEnvValue("MEDSBOT_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("MEDSBOT_DB_PORT", &cfg.Database.Port)
	setEnvValue("MEDSBOT_DB_NAME", &cfg.Database.Name)
	setEnvValue("MEDSBOT_DB_USER", &cfg.Database.User)
	setEnvValue("MEDSBOT_DB_PWD", &cfg.Database.Passwd)
	setEnvBoolValue("MEDSBOT_DB_DEBUG", &cfg.Database.Debug)

	setEnvValue("MEDSBOT_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("MEDSBOT_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvValue("MEDSBOT_LOGGER_FILENAME", &cfg.Logger.Filename)

	setEnvBoolValue("MEDSBOT_BOT_ENABLED", &cfg.Bot.Enabled)
	setEnvListValue("MEDSBOT_BOT_ALLOWED_USERS", &cfg.Bot.AllowedUsers)
	setEnvBoolValue("MEDSBOT_BOT_PRINT_QR", &cfg.Bot.PrintQR)

	setEnvValue("MEDSBOT_REMINDER_CRON", &cfg.Reminder.Cron)
}

func setEnvValue(name string, val *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*val = v
	}
}

func setEnvBoolValue(name string, val *bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	if b, err := cast.ToBoolE(v); err == nil {
		*val = b
	}
}

func setEnvIntValue(name string, val *int) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	if n, err := cast.ToIntE(v); err == nil {
		*val = n
	}
}

func setEnvListValue(name string, val *[]string) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*val = items
}
