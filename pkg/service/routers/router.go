package routers

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"saturn.io/saturn/pkg/deployment"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/aaa"
	"saturn.io/saturn/pkg/service/handlers"
	"saturn.io/saturn/pkg/service/handlers/base"
	deploymenthandler "saturn.io/saturn/pkg/service/handlers/deployment"
	migrationhandler "saturn.io/saturn/pkg/service/handlers/migration"
	"saturn.io/saturn/pkg/version"
)

// Services are what the api handlers call into.
type Services struct {
	Actors     aaa.ContextActorOperator
	Migration  *migration.Service
	Deployment *deployment.Service
}

func getClientIP(c *gin.Context) string {
	forwardHeader := c.Request.Header.Get("x-forwarded-for")
	if len(forwardHeader) > 0 {
		firstAddress := strings.Split(forwardHeader, ",")[0]
		if net.ParseIP(strings.TrimSpace(firstAddress)) != nil {
			return firstAddress
		}
	}
	return c.ClientIP()
}

func RealClientIPMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		_, port, _ := net.SplitHostPort(strings.TrimSpace(ctx.Request.RemoteAddr))
		ip := getClientIP(ctx)
		ctx.Request.RemoteAddr = fmt.Sprintf("%s:%s", ip, port)
		ctx.Next()
	}
}

func NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(
		// logging
		log.DefaultGinLoggerMiddleware(),
		// panic
		gin.Recovery(),
	)
	return router
}

func RegistRouter(router *gin.Engine, services Services, middlewares ...gin.HandlerFunc) {
	basehandler := base.NewBaseHandler(services.Actors)

	// health, version, metrics
	router.Use(RealClientIPMiddleware())
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	router.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, version.Get()) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rg := router.Group("v1")
	rg.GET("/version", func(c *gin.Context) { handlers.OK(c, version.Get()) })

	rg.Use(middlewares...)

	// migrations
	migrationHandler := &migrationhandler.MigrationHandler{BaseHandler: basehandler, Service: services.Migration}
	migrationHandler.RegistRouter(rg)

	// deployments
	deploymentHandler := &deploymenthandler.DeploymentHandler{BaseHandler: basehandler, Service: services.Deployment}
	deploymentHandler.RegistRouter(rg)
}
