package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"

	"ctm_arena/internal/db"
	"ctm_arena/internal/domain"
	"ctm_arena/internal/repository"
	"ctm_arena/internal/service"
)

// Generates a funded test account and prints the key material plus a JWT,
// ready for manual protocol runs.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}
	addr := domain.AddressFromPubKey(pub)

	repo := repository.NewAccountRepository(pool)
	account, err := repo.Create(context.Background(), addr)
	if err != nil {
		log.Fatalf("create account: %v", err)
	}
	log.Printf("account address=%s points=%d\n", account.Address, account.Points)
	log.Printf("private_key=%s\n", hex.EncodeToString(priv.Seed()))

	service.InitJWT(jwtSecret)
	token, err := service.GenerateJWT(addr)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	log.Printf("token=%s\n", token)
}
