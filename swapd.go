package swapd

import (
	"context"
	"log"
	"sync"

	"github.com/satswap/swapd/batch"
	"github.com/satswap/swapd/blockstream"
	"github.com/satswap/swapd/build"
	"github.com/satswap/swapd/config"
	"github.com/satswap/swapd/lnd"
	"github.com/satswap/swapd/lnproxy"
	"github.com/satswap/swapd/monitor"
	"github.com/satswap/swapd/notifications"
	"github.com/satswap/swapd/postgresql"
	"github.com/satswap/swapd/swap"
)

func Main(ctx context.Context, cfg *config.Config) error {
	log.Printf(`Starting swapd, tag='%s', revision='%s'`, build.GetTag(), build.GetRevision())

	if cfg.AutoMigrateDb {
		err := postgresql.Migrate(cfg.DatabaseUrl)
		if err != nil {
			log.Fatalf("Failed to migrate postgres database: %v", err)
		}
	}

	pool, err := postgresql.PgConnect(cfg.DatabaseUrl)
	if err != nil {
		log.Fatalf("pgConnect() error: %v", err)
	}

	offerStore := postgresql.NewPostgresOfferStore(pool)
	dealStore := postgresql.NewPostgresDealStore(pool)

	chainClient, err := blockstream.NewClient(cfg.MempoolApiBaseUrl)
	if err != nil {
		log.Fatalf("failed to initialize block explorer client: %v", err)
	}

	lightningClient, err := lnd.NewClient(cfg.LndRestBaseUrl, cfg.LndMacaroon)
	if err != nil {
		log.Fatalf("failed to initialize LND client: %v", err)
	}

	wrapper, err := lnproxy.NewClient(cfg.LnproxyBaseUrl)
	if err != nil {
		log.Fatalf("failed to initialize lnproxy client: %v", err)
	}

	sender, err := notifications.NewTelegramSender(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("failed to initialize telegram sender: %v", err)
	}
	notifier := notifications.NewNotificationService(sender)

	service := swap.NewService(cfg, offerStore, dealStore, chainClient, lightningClient, wrapper, notifier)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeoutWatcher := monitor.NewTimeoutWatcher(offerStore, dealStore, notifier)
	confirmationPoller := monitor.NewConfirmationPoller(
		dealStore, chainClient, notifier, service, cfg.RequiredConfirmations, cfg.InvoiceTimeout)
	settlementPoller := monitor.NewSettlementPoller(dealStore, lightningClient, notifier)
	privacyMonitor := monitor.NewPrivacyMonitor(dealStore, wrapper, service)
	scheduler := batch.NewScheduler(cfg, dealStore, notifier)

	loops := []struct {
		name  string
		start func(context.Context)
	}{
		{"timeout watcher", timeoutWatcher.Start},
		{"confirmation poller", confirmationPoller.Start},
		{"settlement poller", settlementPoller.Start},
		{"privacy monitor", privacyMonitor.Start},
		{"batch scheduler", scheduler.Start},
	}

	var wg sync.WaitGroup
	wg.Add(len(loops))
	for _, loop := range loops {
		l := loop
		go func() {
			l.start(ctx)
			log.Printf("%s stopped.", l.name)
			wg.Done()
		}()
	}

	go func() {
		<-ctx.Done()
		log.Printf("Received stop signal. Stopping.")
	}()

	wg.Wait()
	log.Printf("swapd exited")
	return nil
}
