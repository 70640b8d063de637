package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/db"
	"github.com/sudo-init-do/gigmarket/internal/logging"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// create_actor inserts a client or freelancer, optionally with a card.
// Usage:
//
//	go run ./cmd/adminutil/create_actor -role freelancer -name "Frank" -email frank@example.com -password secret -card 4242424242424242 -expiry 12/29
func main() {
	role := flag.String("role", "client", "client or freelancer")
	name := flag.String("name", "", "full name")
	email := flag.String("email", "", "email address")
	password := flag.String("password", "", "plain-text password, stored as a bcrypt hash")
	card := flag.String("card", "", "card number (optional)")
	expiry := flag.String("expiry", "", "card expiry, required with -card")
	tokenTTL := flag.Duration("token-ttl", 0, "also print a bearer token valid for this long (development only)")
	flag.Parse()

	if err := validate(*role, *name, *email, *password, *card, *expiry); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(config.LogConfig{Level: "warn", Encoding: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool, log); err != nil {
		log.Fatal("schema", zap.Error(err))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}

	tbl := tables[*role]
	var id int64
	err = pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (fullname, email, password) VALUES ($1, $2, $3) RETURNING %s`, tbl.actor, tbl.idCol),
		*name, strings.ToLower(*email), string(hashed),
	).Scan(&id)
	if err != nil {
		log.Fatal("insert actor", zap.String("role", *role), zap.Error(err))
	}

	if *card != "" {
		_, err = pool.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, card_number, expiry_date) VALUES ($1, $2, $3)`, tbl.card, tbl.idCol),
			id, *card, *expiry,
		)
		if err != nil {
			log.Fatal("insert card", zap.Int64("id", id), zap.Error(err))
		}
	}

	fmt.Printf("created %s %d (%s)\n", *role, id, *email)

	if *tokenTTL > 0 {
		tok, err := utils.SignToken(id, *role, []byte(cfg.Auth.JWTSecret), *tokenTTL)
		if err != nil {
			log.Fatal("sign token", zap.Error(err))
		}
		fmt.Println(tok)
	}
}

var tables = map[string]struct{ actor, card, idCol string }{
	"client":     {"client", "clientcardinfo", "client_id"},
	"freelancer": {"freelancer", "freelancercardinfo", "freelancer_id"},
}

func validate(role, name, email, password, card, expiry string) error {
	if _, ok := tables[role]; !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	if name == "" || email == "" || password == "" {
		return fmt.Errorf("-name, -email and -password are required")
	}
	if card != "" && expiry == "" {
		return fmt.Errorf("-expiry is required with -card")
	}
	return nil
}
