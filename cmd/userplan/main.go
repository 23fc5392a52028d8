package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"careercatalyst/internal/adapter/repo"
	"careercatalyst/internal/config"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/ledger"
)

func main() {
	var (
		idFlag    string
		emailFlag string
		planFlag  string
		daysFlag  int
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&planFlag, "plan", "pro", "package to assign (free, pro, ultimate)")
	flag.IntVar(&daysFlag, "days", int(ledger.SubscriptionPeriod/(24*time.Hour)), "subscription length in days for paid packages")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		config.Exit(errors.New("either -id or -email must be provided"))
	}
	pkg, ok := domain.ParsePackage(planFlag)
	if !ok {
		config.Exit(fmt.Errorf("unsupported plan %q", planFlag))
	}
	if pkg.Paid() && daysFlag <= 0 {
		config.Exit(errors.New("-days must be positive for paid packages"))
	}

	cfg, err := config.Load()
	if err != nil {
		config.Exit(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := cfg.Connect(ctx, "userplan")
	if err != nil {
		config.Exit(err)
	}
	defer conn.Close()

	store := repo.NewLedgerRepository(conn.Runner)
	l, err := ledger.New(ledger.Options{Store: store, Logger: &conn.Logger})
	if err != nil {
		config.Exit(err)
	}

	if userID == "" {
		rec, err := store.FindByEmail(ctx, email)
		if err != nil {
			config.Exit(fmt.Errorf("failed to load user %s: %w", email, err))
		}
		userID = rec.UserID
	}

	if pkg.Paid() {
		err = l.ApplyUpgrade(ctx, userID, pkg, time.Duration(daysFlag)*24*time.Hour)
	} else {
		err = l.Downgrade(ctx, userID)
	}
	if err != nil {
		config.Exit(fmt.Errorf("failed to update user plan: %w", err))
	}

	rec, err := l.Record(ctx, userID)
	if err != nil {
		config.Exit(fmt.Errorf("failed to reload user: %w", err))
	}
	fmt.Printf("User %s (%s) updated to package %s\n", rec.UserID, rec.Email, rec.Subscription.Package)
	if rec.Subscription.Expiry != nil {
		fmt.Printf("expiry=%s\n", rec.Subscription.Expiry.Format(time.RFC3339))
	}
	remaining, err := l.RemainingAll(ctx, userID)
	if err != nil {
		return
	}
	for _, m := range domain.Modules {
		fmt.Printf("%s remaining=%s\n", m, remaining[m])
	}
}
