package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var (
	config   *Config
	portal   *PortalClient
	sessions = newSessionRegistry()
)

func init() {
	var err error

	// Extract necessary environment variables
	timeoutEnv := os.Getenv("TIMEOUT")
	appVersion = os.Getenv("APP_VERSION")

	// Set default value if not set
	if timeoutEnv == "" {
		globalTimeout = 30
	} else {
		// Convert timeout to integer
		globalTimeout, err = strconv.Atoi(timeoutEnv)
		if err != nil {
			log.Fatalf("Failed to convert timeout environment variable to integer")
		}
	}

	// Read app configuration
	config, err = readConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Upstream portal client
	portal = newPortalClient(config)
}

func main() {
	// Create new Echo object
	e := echo.New()

	// Add basic middleware to log all requests
	e.Use(middleware.Logger())

	// Configure elastic apm logging
	initAPM(e)

	// Sets CORS headers to allow all origins, but restrict HTTP method type
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	// Middleware to provide more control over response status for APM transactions
	// This must go after the Elastic APM middleware
	e.Use(filterError)

	// Adds a heartbeat handler
	e.GET("/heartbeat", heartbeat)

	// API group
	api := e.Group("/api")
	api.POST("/auth/login", login)
	api.POST("/auth/logout", logout, authRequired)
	api.GET("/user/info", userInfo, authRequired)

	// Record endpoints share the bearer-token middleware
	records := api.Group("/records", authRequired)
	records.POST("/payments/detail", paymentDetail)
	records.POST("/:category", fetchRecords)
	records.GET("/:category/facets", listFacets)
	records.POST("/:category/filter", filterRecords)

	// Start server
	e.Logger.Fatal(e.Start(":8000"))
}
