package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"stockfolio/internal/ledger"
	"stockfolio/internal/ledger/pg"
	"stockfolio/internal/model"
	"stockfolio/internal/ops"
	"stockfolio/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	envFile := flag.String("env-file", ".env", "Env file loaded before overrides (missing file is ignored)")
	users := flag.String("users", "", "Comma separated user ids to verify")
	flag.Parse()

	userIDs := parseUsers(*users)
	if len(userIDs) == 0 {
		log.Fatalf("at least one user is required, use -users")
	}

	loaded, err := ops.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if !loaded.Database.Enabled() {
		log.Fatalf("replay needs a database, set %s or the database section", ops.EnvDatabaseURL)
	}

	ctx := context.Background()
	client, err := conn.New(ctx, loaded.Database)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}

	failed := verify(ctx, pg.New(client.DB()), userIDs)
	_ = client.Close()
	if failed != 0 {
		os.Exit(1)
	}
}

// verify prints one report line per user and returns how many failed.
func verify(ctx context.Context, store ledger.Store, userIDs []string) int {
	var failed int
	for _, userID := range userIDs {
		snapshot, err := ledger.Verify(ctx, store, userID)
		if err != nil {
			failed++
			fmt.Printf("user=%s FAIL %v\n", userID, err)
			continue
		}
		fmt.Printf("user=%s OK balance=%s holdings=%d\n", userID, snapshot.Balance, len(snapshot.Holdings))
		printHoldings(snapshot)
	}
	return failed
}

func parseUsers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := model.NormalizeUserID(part); len(id) != 0 {
			out = append(out, id)
		}
	}
	return out
}

func printHoldings(snapshot ledger.Snapshot) {
	symbols := make([]string, 0, len(snapshot.Holdings))
	for symbol := range snapshot.Holdings {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	for _, symbol := range symbols {
		fmt.Printf("  %s shares=%s\n", symbol, snapshot.Holdings[symbol])
	}
}
