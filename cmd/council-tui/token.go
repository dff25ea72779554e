// ABOUTME: Bearer token lookup for council-tui
// ABOUTME: Reads the token from env, config or token file and reports its expiry without verifying it

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// getToken returns the bearer token from COUNCIL_TOKEN, the config value, or
// ~/.config/council/token, in that order.
func getToken(configured string) string {
	if token := os.Getenv("COUNCIL_TOKEN"); token != "" {
		return token
	}
	if configured != "" {
		return configured
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "council", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// describeToken summarizes a token for the startup banner. The signature is
// not checked; the backend does that. Opaque tokens are reported as such.
func describeToken(token string, now time.Time) string {
	if token == "" {
		return "none (set COUNCIL_TOKEN for authentication)"
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "bearer token configured"
	}

	desc := "JWT"
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		desc += " for " + sub
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return desc + ", no expiry"
	}
	if !exp.After(now) {
		return fmt.Sprintf("%s, EXPIRED %s ago", desc, now.Sub(exp.Time).Round(time.Second))
	}
	return fmt.Sprintf("%s, expires in %s", desc, exp.Sub(now).Round(time.Second))
}
