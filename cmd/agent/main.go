/*
main.go - POS till agent entry point

PURPOSE:
  Runs on the till. Keeps the local durable sale queue and drains it to
  the server in the background. The till software records sales through
  the queue's API; this process owns the sync loop.

ENVIRONMENT:
  SERVER_URL, SHOP_ID, DEVICE_ID, ACTOR_ID, QUEUE_PATH,
  SYNC_INTERVAL_SECONDS, RETENTION_DAYS

SEE ALSO:
  - offline/queue.go: Local sale capture
  - offline/syncer.go: Background drain loop
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tally/shopledger/config"
	"github.com/tally/shopledger/ledger"
	"github.com/tally/shopledger/offline"
)

func main() {
	cfg := config.LoadAgent()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.ShopID == "" || cfg.DeviceID == "" {
		log.Fatal("SHOP_ID and DEVICE_ID are required")
	}

	store, err := offline.NewSQLitePendingStore(cfg.QueuePath)
	if err != nil {
		log.Fatal("failed to open queue", zap.Error(err))
	}
	defer store.Close()

	client := offline.NewHTTPClient(
		cfg.ServerURL,
		ledger.ShopID(cfg.ShopID),
		ledger.DeviceID(cfg.DeviceID),
		ledger.ActorID(cfg.ActorID),
	)

	syncer := offline.NewSyncer(store, client, log)
	syncer.Interval = cfg.SyncInterval
	syncer.Retention = cfg.Retention

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer.Start(ctx)
	syncer.Notify() // drain anything left from the previous run

	pending, err := store.PendingCount(ctx)
	if err == nil {
		log.Info("agent started",
			zap.String("shop", cfg.ShopID),
			zap.String("device", cfg.DeviceID),
			zap.Int("pending", pending),
		)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("agent stopping")
	syncer.Stop()
}
