// ledger-reconcile replays pending consistency gaps: ledger log rows that
// were never appended after a balance update, and sale credits that never
// landed on their payment account.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... REDIS_ADDRESS=... go run ./cmd/ledger-reconcile
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/models"
	"bitbucket.org/mmdatafocus/shopstock_backend/workflow"
)

func main() {
	limit := flag.Int("limit", 100, "Max gaps to process per pass")
	loop := flag.Bool("loop", false, "Keep running, one pass per interval")
	interval := flag.Duration("interval", time.Minute, "Pass interval when -loop is set")
	flag.Parse()

	ctx := context.Background()
	logger := config.NewLogger()
	db := config.ConnectDatabaseWithRetry()
	_, locker := config.ConnectRedisWithRetry()
	ledger := models.NewLedger(db, logger, locker)

	for {
		resolved, failed, err := workflow.ReprocessGaps(ctx, db, logger, ledger, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reconcile pass failed: %v\n", err)
			if !*loop {
				os.Exit(1)
			}
		} else {
			fmt.Printf("reconcile pass done: resolved=%d failed=%d\n", resolved, failed)
		}
		if !*loop {
			return
		}
		time.Sleep(*interval)
	}
}
