package middleware

import (
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ServicesMiddleware(svc *services.Services, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("services", svc)
		c.Set("logger", logger)
		c.Next()
	}
}

func GetServices(c *gin.Context) *services.Services {
	svc, exists := c.Get("services")
	if !exists {
		return nil
	}
	return svc.(*services.Services)
}

func GetLogger(c *gin.Context) *zap.Logger {
	logger, exists := c.Get("logger")
	if !exists {
		return zap.NewNop()
	}
	return logger.(*zap.Logger)
}
