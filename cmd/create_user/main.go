package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"jababank/models"
	"jababank/pkg/config"
	"jababank/pkg/core"
	"jababank/pkg/identity"
	"jababank/pkg/ledger"
	"jababank/pkg/store"
)

func main() {
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "login email")
	password := flag.String("password", "", "initial password (min 6)")
	roleFlag := flag.String("role", "customer", "admin, employee or customer")
	activate := flag.Bool("activate", true, "activate customers immediately")
	flag.Parse()

	if *name == "" || *email == "" || *password == "" {
		fmt.Println("usage: go run ./cmd/create_user -name <name> -email <email> -password <password> [-role customer]")
		os.Exit(2)
	}
	role, ok := models.ParseRole(*roleFlag)
	if !ok {
		log.Fatalf("unknown role %q", *roleFlag)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer store.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ids := identity.NewService(db, ledger.NewEngine(db), identity.Options{Secret: cfg.JWTSecret})

	user, err := ids.Register(ctx, identity.Registration{Name: *name, Email: *email, Password: *password, Role: role})
	if errors.Is(err, identity.ErrEmailTaken) {
		existing, lookupErr := ids.UserByEmail(ctx, *email)
		if lookupErr != nil {
			log.Fatalf("lookup existing user: %v", lookupErr)
		}
		fmt.Printf("user %s already exists (id=%d)\n", *email, existing.ID)
		return
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	if user.Status == models.StatusInactive && *activate {
		if user, err = ids.ApproveUser(ctx, core.System(), user.ID); err != nil {
			log.Fatalf("activate user: %v", err)
		}
	}
	fmt.Printf("created %s %s id=%d status=%s\n", user.Role, user.Email, user.ID, user.Status)

	if user.Role == models.RoleCustomer {
		accounts, err := store.AccountsForUser(ctx, db, user.ID)
		if err != nil {
			log.Fatalf("list accounts: %v", err)
		}
		for _, a := range accounts {
			fmt.Printf("  %s account %s\n", a.Type, a.AccountNumber)
		}
	}
}
