package applog

import (
	"fmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"os"
	"path/filepath"
	"peertag/build"
	"sync"
	"sync/atomic"
	"time"
)

type Logger = zap.Logger

// LogEntry is a zap entry captured together with its fields so it can be
// shipped elsewhere (remote sink).
type LogEntry struct {
	Entry  *zapcore.Entry
	Fields []zap.Field
}

// RemoteLogSender uploads batches of log entries. Implemented by the
// rendezvous client when the user consents to log sharing.
type RemoteLogSender interface {
	WriteLogEntryToRemote(entries []*LogEntry) error
}

const (
	asyncSinkBufferSize               = 4096
	remoteSinkMaxLogEntriesBufferSize = 1024
	remoteSinkBatchSizeLimit          = 32 * 1024
	sinkShutdownTimeout               = 2 * time.Second
)

var (
	globalLogger       = newConsoleLogger()
	noRemoteLogger     = globalLogger
	asyncSinks         []*asyncSink
	remoteSinkInstance *remoteSink
	remoteMu           sync.RWMutex
	acceptingLogs      int32 = 1
	logFile            *os.File
	logLevel           = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func Info(msg string, fields ...zapcore.Field) {
	if !isAccepting() {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zapcore.Field) {
	if !isAccepting() {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Debug(msg string, fields ...zapcore.Field) {
	if !isAccepting() {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func Error(msg string, fields ...zapcore.Field) {
	if !isAccepting() {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

func Fatal(msg string, fields ...zapcore.Field) {
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

func isAccepting() bool {
	return atomic.LoadInt32(&acceptingLogs) == 1
}

// NoRemote returns a logger which never forwards entries to the remote sink.
func NoRemote() *Logger {
	return noRemoteLogger
}

func GetLogger() *Logger {
	return globalLogger
}

func LogStartupInfo(launchArgs interface{}) {
	Info("Application started",
		zap.Stringer("build", build.GetBuildInfo()),
		zap.Any("launchArgs", launchArgs),
	)
}

// Initialize replaces the bootstrap console logger with console and file
// sinks. The log file is named after the room and local peer so two clients
// started from one directory do not interleave.
func Initialize(localId string, roomId string, rawLogLevel int, logPath string) error {
	logLevel.SetLevel(safeGetLogLevelOrDefault(rawLogLevel))

	if logPath == "" {
		workdir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current working directory: %w", err)
		}
		logPath = filepath.Join(workdir, "logs")
	}

	if roomId == "" {
		roomId = "none"
	}

	logFilename := filepath.Join(
		logPath,
		fmt.Sprintf("session_%s_peer_%s.log", roomId, localId),
	)

	if err := os.MkdirAll(filepath.Dir(logFilename), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFilename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file '%s': %w", logFilename, err)
	}
	logFile = file

	jsonEncoder := zapcore.NewJSONEncoder(getEncoderConfig())
	asyncSinks = []*asyncSink{
		newAsyncSink(zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stdout), logLevel), asyncSinkBufferSize),
		newAsyncSink(zapcore.NewCore(jsonEncoder.Clone(), zapcore.AddSync(logFile), logLevel), asyncSinkBufferSize),
	}

	localCores := make([]zapcore.Core, 0, len(asyncSinks))
	for _, sink := range asyncSinks {
		localCores = append(localCores, sink)
	}

	sessionFields := []zap.Field{
		zap.String("localId", localId),
		zap.String("roomId", roomId),
	}

	local := zap.New(zapcore.NewTee(localCores...), zap.AddCaller()).With(sessionFields...)
	withRemote := zap.New(
		zapcore.NewTee(append(localCores, newRemoteCore(logLevel))...),
		zap.AddCaller(),
	).With(sessionFields...)

	atomic.StoreInt32(&acceptingLogs, 1)
	setLogger(withRemote)
	noRemoteLogger = local
	return nil
}

// SetRemoteLogSender enables forwarding of every entry logged through the
// global logger to sender, batched by the remote sink.
func SetRemoteLogSender(sender RemoteLogSender) {
	remoteMu.Lock()
	defer remoteMu.Unlock()

	if remoteSinkInstance != nil {
		remoteSinkInstance.Shutdown(sinkShutdownTimeout)
	}
	remoteSinkInstance = newRemoteSink(sender, remoteSinkMaxLogEntriesBufferSize, getEncoderConfig())
}

// Shutdown stops accepting entries, flushes the remote sink and drains the
// async sinks. Safe to call more than once.
func Shutdown() {
	atomic.StoreInt32(&acceptingLogs, 0)

	remoteMu.Lock()
	if remoteSinkInstance != nil {
		remoteSinkInstance.Shutdown(sinkShutdownTimeout)
		remoteSinkInstance = nil
	}
	remoteMu.Unlock()

	for _, sink := range asyncSinks {
		sink.Shutdown(sinkShutdownTimeout)
	}
	asyncSinks = nil

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// ExtractFieldValue renders a zap field into a plain value suitable for JSON.
func ExtractFieldValue(field zap.Field) (interface{}, error) {
	enc := zapcore.NewMapObjectEncoder()
	field.AddTo(enc)

	value, ok := enc.Fields[field.Key]
	if !ok {
		return nil, fmt.Errorf("field %q produced no value", field.Key)
	}
	return value, nil
}

func safeGetLogLevelOrDefault(rawLogLevel int) zapcore.Level {
	if rawLogLevel < int(zapcore.DebugLevel) || rawLogLevel > int(zapcore.FatalLevel) {
		return zapcore.InfoLevel
	}
	return zapcore.Level(rawLogLevel)
}

func getEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	return encoderConfig
}

func newConsoleLogger() *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(getEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		logLevel,
	)
	return zap.New(core, zap.AddCaller())
}

func setLogger(l *Logger) {
	globalLogger = l
	noRemoteLogger = l
	zap.ReplaceGlobals(l)
}
