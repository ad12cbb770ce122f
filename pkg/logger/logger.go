package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	"github.com/noah-isme/sma-admissions-api/pkg/middleware/requestid"
)

// userContextKey mirrors the key the JWT middleware stores claims under.
const userContextKey = "currentUser"

func New(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Log.Format {
	case "console":
		zapCfg.Encoding = "console"
	default:
		zapCfg.Encoding = "json"
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var opts []zap.Option
	if cfg.Rollbar.Token != "" {
		rollbar.SetToken(cfg.Rollbar.Token)
		rollbar.SetEnvironment(cfg.Rollbar.Environment)
		rollbar.SetCodeVersion(cfg.Rollbar.CodeVersion)
		opts = append(opts, zap.Hooks(RollbarHook(rollbarReporter{})))
	}

	return zapCfg.Build(opts...)
}

// Reporter receives error level entries for external tracking.
type Reporter interface {
	Report(level string, message string, extras map[string]interface{})
}

type rollbarReporter struct{}

func (rollbarReporter) Report(level, message string, extras map[string]interface{}) {
	rollbar.Log(level, message, extras)
}

// RollbarHook returns a zap hook forwarding error level entries to the reporter.
func RollbarHook(r Reporter) func(zapcore.Entry) error {
	return func(entry zapcore.Entry) error {
		if entry.Level < zapcore.ErrorLevel {
			return nil
		}
		level := rollbar.ERR
		if entry.Level >= zapcore.DPanicLevel {
			level = rollbar.CRIT
		}
		r.Report(level, entry.Message, map[string]interface{}{
			"logger": entry.LoggerName,
			"caller": entry.Caller.TrimmedPath(),
		})
		return nil
	}
}

// GinMiddleware writes one structured line per request after it completes.
// 4xx responses log at warn, 5xx at error.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		reqID := requestid.Value(c)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		}
		if reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if v, ok := c.Get(userContextKey); ok {
			if claims, ok := v.(*models.JWTClaims); ok {
				fields = append(fields, zap.String("user_id", claims.UserID), zap.String("role", string(claims.Role)))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			l.Error("http_request", fields...)
		case status >= 400:
			l.Warn("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}
