// Command issue-token mints a bearer token for local development.
//
//	go run ./cmd/issue-token -email alice@example.com
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-posts/pkg/simpleposts/config"
	"github.com/tendant/simple-posts/pkg/simpleposts/identity"
)

func main() {
	email := flag.String("email", "", "email claim of the token")
	subject := flag.String("sub", "", "subject claim (default: random uuid)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "-email is required")
		flag.Usage()
		os.Exit(2)
	}
	if *subject == "" {
		*subject = uuid.NewString()
	}

	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	resolver, err := identity.New(cfg.JWTSecret)
	if err != nil {
		slog.Error("Failed to create resolver", "err", err)
		os.Exit(1)
	}

	token, err := resolver.IssueToken(*subject, *email, *ttl)
	if err != nil {
		slog.Error("Failed to issue token", "err", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
