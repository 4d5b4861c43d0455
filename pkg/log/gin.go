package log

import (
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func SetGinDebugPrintRouteFunc(logger *zap.Logger) {
	const callerSkip = 2
	logger = logger.WithOptions(zap.AddCallerSkip(callerSkip))
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {
		logger.Info("registered",
			zap.String("method", httpMethod),
			zap.String("path", absolutePath),
			zap.String("handler", path.Base(handlerName)),
			zap.Int("count", nuHandlers),
		)
	}
}

func DefaultGinLoggerMiddleware() gin.HandlerFunc {
	return NewGinLoggerMiddleware(GlobalLogger)
}

// NewGinLoggerMiddleware logs one line per request; 4xx as warn, 5xx and handler errors as error.
func NewGinLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.WithOptions(zap.AddCallerSkip(1))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("code", statusCode),
			zap.Duration("latency", time.Since(start)),
		}
		if team, ok := c.Get("team_id"); ok {
			fields = append(fields, zap.Any("team", team))
		}
		switch {
		case len(c.Errors) != 0:
			logger.Error(c.Errors.String(), fields...)
		case statusCode >= http.StatusInternalServerError:
			logger.Error(http.StatusText(statusCode), fields...)
		case statusCode >= http.StatusBadRequest:
			logger.Warn(http.StatusText(statusCode), fields...)
		default:
			logger.Debug(http.StatusText(statusCode), fields...)
		}
	}
}
