package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pulsewatch/pulsewatch/pkg/api/handlers"
	"github.com/pulsewatch/pulsewatch/pkg/api/middleware"
	"github.com/pulsewatch/pulsewatch/pkg/database"
	"github.com/pulsewatch/pulsewatch/pkg/notification"
	"github.com/pulsewatch/pulsewatch/pkg/recorder"
)

// NewRouter builds the gin engine carrying the engine's two externally
// facing endpoints: push ingestion and test-channel dispatch. Everything
// else (monitor CRUD, scheduling control) is an importable Go API rather
// than a route.
func NewRouter(monitors *database.MonitorRepository, rec *recorder.Recorder, notifier *notification.Engine) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	push := handlers.NewPushHandler(monitors, rec)
	testChannel := handlers.NewTestChannelHandler(notifier)

	api := r.Group("/api")
	{
		api.GET("/push/:token", push.Handle)
		api.POST("/control/test-channel", testChannel.Handle)
	}

	return r
}
