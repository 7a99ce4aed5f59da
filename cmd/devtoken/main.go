// Command devtoken mints a bearer token signed with the configured JWT secret,
// for calling the API locally.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"marketplace-bidding/internal/auth"
	"marketplace-bidding/internal/config"
	"marketplace-bidding/utils"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to the server config file")
	userID := flag.String("user", "", "user id to put in the token (required)")
	email := flag.String("email", "", "email claim")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to auth.token_ttl")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewIssuer(cfg.Auth.JWTSecret, lifetime).Issue(*userID, *email)
	if err != nil {
		utils.Fatal("failed to issue token", map[string]any{"error": err.Error()})
	}

	fmt.Println(token)
	if lifetime > 0 {
		fmt.Fprintf(os.Stderr, "expires at %s\n", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	}
}
