package main

import (
	"errors"
	"net/http"
	"syscall"

	"github.com/labstack/echo/v4"
)

const (
	// Utilizes a non-standard nginx code
	statusClosedConnection int = 499
)

func filterError(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := c.Response()
		// Process the request
		err := next(c)
		// The below is executed after the request and subsequent middleware
		if err != nil {
			// Check for a broken pipe, modify response status, and create an error
			if errors.Is(err, syscall.EPIPE) {
				logger(c.Request().Context(), err)
				resp.Status = statusClosedConnection
				return nil
			}
		}
		return err
	}
}

// authRequired validates the portal bearer token and stores the
// upstream credentials on the request context for the handlers.
func authRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger(r.Context(), errors.New("authorization header not found"))
			return c.NoContent(http.StatusUnauthorized)
		}

		username, password, err := parseAccessToken(authHeader, []byte(config.SecretKey))
		if err != nil {
			logger(r.Context(), err)
			return c.NoContent(http.StatusUnauthorized)
		}

		// Set credentials on context struct
		c.Set("username", username)
		c.Set("password", password)

		return next(c)
	}
}
