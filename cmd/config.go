package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"runnel.dev/pkg/runnel/internal/domain"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "runnel"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName      = "output"
	excludeFlagName     = "exclude"
	verboseFlagName     = "verbose"
	runParallelFlagName = "parallel"
	runTimeoutFlagName  = "timeout"

	runParallelConfigKey       = "run.parallel"
	runTimeoutConfigKey        = "run.timeout"
	runPollIntervalConfigKey   = "run.poll_interval"
	runnerProgramConfigKey     = "runner.program"
	runnerExtraArgsConfigKey   = "runner.extra_args"
	reconcileParallelConfigKey = "reconcile.parallel"
	cacheSizeConfigKey         = "cache.size"
	excludeConfigKey           = "paths.exclude"

	defaultReportsDir        = ".runnel-reports"
	defaultRunParallel       = 1
	defaultRunTimeout        = 10 * time.Minute
	defaultPollInterval      = domain.DefaultPollInterval
	defaultReconcileParallel = 1
	defaultCacheSize         = domain.DefaultCacheSize

	envPrefix = "RUNNEL"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".runnel.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)
	viper.SetDefault(excludeConfigKey, []string{})
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(runTimeoutConfigKey, int64(defaultRunTimeout.Seconds()))
	viper.SetDefault(runPollIntervalConfigKey, defaultPollInterval.Milliseconds())
	viper.SetDefault(runnerProgramConfigKey, domain.DefaultProgram)
	viper.SetDefault(runnerExtraArgsConfigKey, []string{})
	viper.SetDefault(reconcileParallelConfigKey, defaultReconcileParallel)
	viper.SetDefault(cacheSizeConfigKey, defaultCacheSize)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

// runTimeout reads run.timeout in seconds. Zero or less disables it.
func runTimeout() time.Duration {
	seconds := viper.GetInt64(runTimeoutConfigKey)
	if seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// pollInterval reads run.poll_interval in milliseconds.
func pollInterval() time.Duration {
	ms := viper.GetInt64(runPollIntervalConfigKey)
	if ms <= 0 {
		return defaultPollInterval
	}

	return time.Duration(ms) * time.Millisecond
}

func commandOptions() domain.CommandOptions {
	return domain.CommandOptions{
		Program:   viper.GetString(runnerProgramConfigKey),
		ExtraArgs: viper.GetStringSlice(runnerExtraArgsConfigKey),
	}
}

func workspaceOptions() domain.WorkspaceOptions {
	return domain.WorkspaceOptions{
		Exclude:   viper.GetStringSlice(excludeConfigKey),
		Parallel:  viper.GetInt(reconcileParallelConfigKey),
		CacheSize: viper.GetInt(cacheSizeConfigKey),
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Numeric slog levels are accepted too (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at the configured level; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
