// Command seed loads a few demo accounts and paid contents and prints a
// bearer token for each account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"creator-paywall/internal/config"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/money"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/api"
	boltdb "creator-paywall/internal/infra/db/bolt"
	pg "creator-paywall/internal/infra/db/postgres"
	"creator-paywall/internal/infra/logging"
)

type store interface {
	repository.CatalogWriter
	repository.ContentReader
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var st store
	switch cfg.Store.Driver {
	case "bolt":
		s, err := boltdb.Open(cfg.Store.BoltPath, logger)
		if err != nil {
			log.Fatalf("bolt: %v", err)
		}
		defer s.Close()
		st = s
	default:
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		st = pg.NewLedger(pool, logger)
	}

	accounts := []struct {
		ID, Username, Payout string
	}{
		{"creator-1", "ana", "acct_ana_payout"},
		{"creator-2", "bo", "acct_bo_payout"},
		{"buyer-1", "cy", ""},
	}
	for _, a := range accounts {
		acct, err := model.NewAccount(a.ID, a.Username)
		if err != nil {
			log.Fatalf("account %s: %v", a.ID, err)
		}
		acct.PayoutAccountID = a.Payout
		if err := st.SaveAccount(ctx, acct); err != nil {
			log.Fatalf("save account %s: %v", a.ID, err)
		}
	}

	policy := money.Policy{FeeBasisPoints: cfg.Fees.PlatformFeeBps, MaxPrice: cfg.Fees.MaxPriceCents}
	contents := []struct {
		ID, Creator, Title, Price string
	}{
		{"content-1", "creator-1", "Pasta from scratch", "9.99"},
		{"content-2", "creator-1", "Sourdough masterclass", "25.00"},
		{"content-3", "creator-2", "Night photography", "0.01"},
	}
	for _, c := range contents {
		if _, err := st.GetContent(ctx, c.ID); err == nil {
			fmt.Printf("content %s already present, skipping\n", c.ID)
			continue
		}
		price, err := money.Parse(c.Price)
		if err != nil {
			log.Fatalf("content %s: %v", c.ID, err)
		}
		split, err := policy.Split(price)
		if err != nil {
			log.Fatalf("content %s: %v", c.ID, err)
		}
		item, err := model.NewContent(c.ID, c.Creator, c.Title, price)
		if err != nil {
			log.Fatalf("content %s: %v", c.ID, err)
		}
		if err := st.SaveContent(ctx, item); err != nil {
			log.Fatalf("save content %s: %v", c.ID, err)
		}
		fmt.Printf("  - %s by %s (price=%s fee=%s creator=%s)\n", c.Title, c.Creator,
			money.Format(split.Price), money.Format(split.PlatformFee), money.Format(split.CreatorEarnings))
	}

	tokens := api.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	fmt.Println("tokens:")
	for _, a := range accounts {
		tok, err := tokens.Mint(a.ID)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Printf("  %s: %s\n", a.ID, tok)
	}
}
