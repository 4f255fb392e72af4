package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authpkg "github.com/addisgo/delivery-backend/auth"
	deliveryrepo "github.com/addisgo/delivery-backend/delivery/repository"
	deliverysvc "github.com/addisgo/delivery-backend/delivery/service"
	driverrepo "github.com/addisgo/delivery-backend/driver/repository"
	driversvc "github.com/addisgo/delivery-backend/driver/service"
	api "github.com/addisgo/delivery-backend/handler"
	"github.com/addisgo/delivery-backend/metrics"
	"github.com/addisgo/delivery-backend/middleware"
	"github.com/addisgo/delivery-backend/realtime"
	stoprepo "github.com/addisgo/delivery-backend/stop/repository"
	stopsvc "github.com/addisgo/delivery-backend/stop/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found (using environment variables)")
	}

	db := setupDatabase()
	metrics.Register()

	hub := realtime.NewHub()

	stopRepo := stoprepo.NewGormStopRepo(db)
	deliveryRepo := deliveryrepo.NewGormDeliveryRepo(db)
	driverRepo := driverrepo.NewGormDriverRepo(db)

	stopService := stopsvc.NewStopService(stopRepo, deliveryRepo, driverRepo, hub)
	deliveryService := deliverysvc.NewDeliveryService(deliveryRepo, driverRepo)
	driverService := driversvc.NewDriverService(driverRepo, authpkg.Secret())

	stopHandler := api.NewStopHandler(stopService)
	deliveryHandler := api.NewDeliveryHandler(deliveryService)
	driverHandler := api.NewDriverHandler(driverService)
	wsHandler := api.NewWSHandler(stopService)

	r := gin.Default()
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/api/v1/auth/login", driverHandler.Login())

	v1 := r.Group("/api/v1", middleware.RequireAuth())
	{
		v1.POST("/drivers", middleware.RequireRoles("admin"), driverHandler.RegisterDriver())
		v1.POST("/deliveries", middleware.RequireRoles("admin"), deliveryHandler.CreateDelivery())
		v1.GET("/deliveries/:id", deliveryHandler.GetDelivery())
		v1.GET("/deliveries/:id/stops", stopHandler.ListStops())
		v1.GET("/deliveries/:id/stops/current", stopHandler.CurrentStop())
		v1.GET("/deliveries/:id/stops/remaining", stopHandler.RemainingStops())
		v1.GET("/deliveries/:id/completed", stopHandler.AllCompleted())
		v1.GET("/deliveries/:id/watch", wsHandler.WatchStops())

		v1.GET("/drivers/me/delivery", middleware.RequireRoles("driver"), deliveryHandler.ActiveDelivery())

		v1.POST("/stops/:id/arrive", middleware.RequireRoles("driver"), stopHandler.MarkArrived())
		v1.POST("/stops/:id/complete", middleware.RequireRoles("driver"), stopHandler.CompleteStop())
		v1.POST("/stops/:id/fail", middleware.RequireRoles("driver"), stopHandler.MarkFailed())
		v1.PATCH("/stops/:id", middleware.RequireRoles("admin"), stopHandler.UpdateStatus())
	}

	r.Run() // listen and serve on 0.0.0.0:8080
}
