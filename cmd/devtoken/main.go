// Command devtoken prints a signed editor token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/jwt"
)

func main() {
	godotenv.Load()

	editorID := flag.String("editor", "", "editor id to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-in-production"
	}

	token, err := jwt.GenerateToken(*editorID, *ttl, secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
