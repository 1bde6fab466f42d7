package main

import (
	"fmt"
	"os"
	"time"

	"backend-triptracker/internal/auth"
	"backend-triptracker/internal/config"
)

const defaultTTL = 30 * 24 * time.Hour

// Prints a bearer token for DEVICE_ID signed with JWT_SECRET.
func main() {
	token, err := issue(config.Load(), os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func issue(cfg config.Config, args []string) (string, error) {
	ttl := defaultTTL
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil || d <= 0 {
			return "", fmt.Errorf("ttl must be a positive duration, got %q", args[0])
		}
		ttl = d
	}
	return auth.SignToken(cfg.JWTSecret, cfg.DeviceID, ttl)
}
