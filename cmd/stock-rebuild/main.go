// stock-rebuild recomputes pool quantities for one shop by replaying its
// stock movement history, repairing any drift it finds.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/stock-rebuild --shop-id <uuid>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/workflow"
)

func main() {
	shopId := flag.String("shop-id", "", "Required: shop id (uuid)")
	flag.Parse()

	if strings.TrimSpace(*shopId) == "" {
		fmt.Fprintln(os.Stderr, "--shop-id is required")
		os.Exit(1)
	}

	ctx := context.Background()
	logger := config.NewLogger()
	db := config.ConnectDatabaseWithRetry()

	repaired, err := workflow.RebuildStockFromMovements(ctx, db, logger, *shopId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stock rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("stock rebuild done: repaired=%d rows\n", repaired)
}
