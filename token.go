package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// createAccessToken issues the portal's own bearer token. The token
// carries the upstream credentials so each request can re-sign-in
// against the hospital API.
func createAccessToken(username, password string, ttl time.Duration, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"pwd": password,
		"exp": jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// parseAccessToken validates a bearer token and returns the upstream
// credentials embedded in it.
func parseAccessToken(authHeader string, secret []byte) (string, string, error) {
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("token claims not found")
	}

	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return "", "", fmt.Errorf("subject (sub) claim missing")
	}
	password, ok := claims["pwd"].(string)
	if !ok || password == "" {
		return "", "", fmt.Errorf("credential (pwd) claim missing")
	}

	return username, password, nil
}
