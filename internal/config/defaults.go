package config

const (
	defaultConfigPath               = "~/.config/quire/config.toml"
	defaultSpoolDir                 = "~/.local/share/quire/spool"
	defaultLogDir                   = "~/.local/share/quire/logs"
	defaultAPIBind                  = "127.0.0.1:8989"
	defaultBackendHost              = "127.0.0.1"
	defaultBackendPort              = 2003
	defaultUnoconvertBinary         = "unoconvert"
	defaultConnectAttempts          = 3
	defaultConnectBackoffSeconds    = 3
	defaultRestartGraceSeconds      = 4
	defaultConversionTimeoutSeconds = 100
	defaultMaxDocumentParts         = 2175
	defaultHousekeepingInterval     = 60
	defaultSpoolExpirySeconds       = 1800
	defaultJournalMaxEntries        = 5000
	defaultNotifyTimeoutSeconds     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SpoolDir: defaultSpoolDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Backend: Backend{
			Host:                     defaultBackendHost,
			Port:                     defaultBackendPort,
			UnoconvertBinary:         defaultUnoconvertBinary,
			ConnectAttempts:          defaultConnectAttempts,
			ConnectBackoffSeconds:    defaultConnectBackoffSeconds,
			RestartGraceSeconds:      defaultRestartGraceSeconds,
			ConversionTimeoutSeconds: defaultConversionTimeoutSeconds,
			MaxDocumentParts:         defaultMaxDocumentParts,
		},
		Housekeeping: Housekeeping{
			IntervalSeconds: defaultHousekeepingInterval,
			ExpirySeconds:   defaultSpoolExpirySeconds,
		},
		Journal: Journal{
			Enabled:    true,
			MaxEntries: defaultJournalMaxEntries,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
