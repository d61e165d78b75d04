// Command devtoken prints a signed bearer token for local development.
//
//	devtoken -role CREATOR -status approved -ttl 24h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/lotmarket/pkg/auth"
	"github.com/floroz/lotmarket/services/auction-service/internal/config"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/identity"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	userFlag := flag.String("user", "", "user id (random when empty)")
	roleFlag := flag.String("role", string(identity.RoleBidder), "CREATOR, BIDDER, AGGREGATOR or ADMIN")
	statusFlag := flag.String("status", string(identity.AccountApproved), "pending, approved or rejected")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	role, err := identity.ParseRole(*roleFlag)
	if err != nil {
		logger.Error("Invalid role", "error", err)
		os.Exit(1)
	}
	status, err := identity.ParseAccountStatus(*statusFlag)
	if err != nil {
		logger.Error("Invalid account status", "error", err)
		os.Exit(1)
	}

	userID := uuid.New()
	if *userFlag != "" {
		if userID, err = uuid.Parse(*userFlag); err != nil {
			logger.Error("Invalid user id", "error", err)
			os.Exit(1)
		}
	}

	privPEM, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		logger.Error("Failed to read private key (JWT_PRIVATE_KEY_PATH)", "error", err)
		os.Exit(1)
	}
	pubPEM, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		logger.Error("Failed to read public key (JWT_PUBLIC_KEY_PATH)", "error", err)
		os.Exit(1)
	}

	signer, err := auth.NewSigner(privPEM, pubPEM, cfg.JWTIssuer)
	if err != nil {
		logger.Error("Failed to load keys", "error", err)
		os.Exit(1)
	}

	token, err := signer.GenerateToken(userID, string(role), string(status), *ttl)
	if err != nil {
		logger.Error("Failed to sign token", "error", err)
		os.Exit(1)
	}

	logger.Info("Token issued", "user_id", userID, "role", role, "account_status", status, "ttl", ttl.String())
	fmt.Println(token)
}
