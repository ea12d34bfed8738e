// Package logger предоставляет логирование с именем сервиса и асинхронной записью,
// чтобы не блокировать основное приложение. Поддерживается логирование времени выполнения функций.
//
// Записи пишутся в JSON через zerolog; запись идёт через diode-буфер, при переполнении
// сообщения отбрасываются, а не блокируют вызывающего.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

const asyncBufferSize = 8192

var (
	mu      sync.RWMutex
	service string
	base    zerolog.Logger
	out     io.Writer
	once    sync.Once
)

func initWorker() {
	out = diode.NewWriter(os.Stdout, asyncBufferSize, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "logger: dropped %d messages\n", missed)
	})
	base = zerolog.New(out).Level(levelFromEnv()).With().Timestamp().Logger()
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// L возвращает логгер с полем service (если задан SetPrefix).
func L() *zerolog.Logger {
	once.Do(initWorker)
	mu.RLock()
	defer mu.RUnlock()
	l := base
	if service != "" {
		l = l.With().Str("service", service).Logger()
	}
	return &l
}

// SetPrefix задаёт имя сервиса для всех последующих логов (например "chat").
func SetPrefix(p string) {
	mu.Lock()
	service = p
	mu.Unlock()
}

// SetOutput перенаправляет вывод (используется в тестах).
func SetOutput(w io.Writer) {
	once.Do(initWorker)
	mu.Lock()
	base = base.Output(w)
	mu.Unlock()
}

// Info пишет сообщение уровня info.
func Info(v ...any) {
	l := L()
	l.Info().Msg(fmt.Sprint(v...))
}

// Infof форматирует и пишет сообщение уровня info.
func Infof(format string, v ...any) {
	l := L()
	l.Info().Msgf(format, v...)
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	l := L()
	l.Debug().Msgf(format, v...)
}

// Error пишет ошибку.
func Error(v ...any) {
	l := L()
	l.Error().Msg(fmt.Sprint(v...))
}

// Errorf форматирует ошибку.
func Errorf(format string, v ...any) {
	l := L()
	l.Error().Msgf(format, v...)
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	l := L()
	if l.GetLevel() <= zerolog.DebugLevel || elapsed >= 100*time.Millisecond {
		l.Info().Str("fn", fn).Int64("duration_ms", elapsed.Milliseconds()).Send()
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
