package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"jababank/pkg/config"
	"jababank/pkg/identity"
	"jababank/pkg/ledger"
	"jababank/pkg/statement"
	"jababank/pkg/store"
)

func main() {
	email := flag.String("email", "", "customer email")
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to print (YYYY-MM)")
	flag.Parse()
	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/statement -email <email> [-month YYYY-MM]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	user, err := identity.NewService(db, ledger.NewEngine(db), identity.Options{}).UserByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("user not found: %v", err)
	}
	st, err := statement.Build(ctx, db, user.ID, *month)
	if err != nil {
		log.Fatal(err)
	}
	if err := st.Print(os.Stdout); err != nil {
		log.Fatal(err)
	}
}
