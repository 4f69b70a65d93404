package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"jababank/pkg/config"
	"jababank/pkg/events"
)

func main() {
	group := flag.String("group", "ledger-tail", "consumer group id")
	only := flag.String("type", "", "print only events of this type")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if !cfg.Kafka.Enabled() {
		fmt.Fprintln(os.Stderr, "KAFKA_BROKER not set; export KAFKA_BROKER and retry")
		os.Exit(2)
	}
	reader := events.NewReader(cfg.Kafka, *group)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Printf("tailing %s on %s", cfg.Kafka.Topic, cfg.Kafka.Broker)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("read error: %v", err)
			continue
		}
		e, err := events.Decode(msg)
		if err != nil {
			log.Print(err)
			continue
		}
		if *only != "" && e.Type != *only {
			continue
		}
		fmt.Printf("%s %-20s key=%-16s actor=%d %s\n", e.OccurredAt.Format("2006-01-02T15:04:05Z"), e.Type, e.Key, e.ActorID, e.Data)
	}
}
