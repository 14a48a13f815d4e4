// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error, fatal
	LogToFile  bool   `mapstructure:"log_to_file"`
	LogToJSON  bool   `mapstructure:"log_to_json"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`    // megabytes
	MaxBackups int    `mapstructure:"max_backups"` // number of backups
	MaxAge     int    `mapstructure:"max_age"`     // days
	Compress   bool   `mapstructure:"compress"`    // compress old log files
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogToFile:  false,
		LogToJSON:  false,
		FilePath:   "commentboard.log",
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

func InitLogger(config LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if config.LogToJSON {
		writers = append(writers, os.Stdout)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				"component",
				zerolog.MessageFieldName,
			},
		})
	}
	if config.LogToFile && config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	var output io.Writer
	if len(writers) > 1 {
		output = io.MultiWriter(writers...)
	} else {
		output = writers[0]
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

type Logger struct {
	logger zerolog.Logger
}

func NewLogger(component string) *Logger {
	return &Logger{
		logger: log.With().Str("component", component).Logger(),
	}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
	}
}

func (l *Logger) Debug(msg string)                       { l.logger.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l *Logger) Info(msg string)                        { l.logger.Info().Msg(msg) }
func (l *Logger) Infof(format string, v ...interface{})  { l.logger.Info().Msgf(format, v...) }
func (l *Logger) Warn(msg string)                        { l.logger.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l *Logger) Error(msg string)                       { l.logger.Error().Msg(msg) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
func (l *Logger) Fatal(msg string)                       { l.logger.Fatal().Msg(msg) }
func (l *Logger) Fatalf(format string, v ...interface{}) { l.logger.Fatal().Msgf(format, v...) }
