package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/attendance/internal/api"
	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/config"
	"example.com/attendance/internal/consumer"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/gateway"
	"example.com/attendance/internal/notify"
	"example.com/attendance/internal/persistence/postgres"
	"example.com/attendance/internal/persistence/sqlite"
	"example.com/attendance/internal/report"
	"example.com/attendance/internal/scheduler"
	httptransport "example.com/attendance/internal/transport/http"
)

// attendanceStore is what either storage backend provides.
type attendanceStore interface {
	domain.Store
	scheduler.State
	Close() error
}

func main() {
	if err := config.LoadDotEnv(log.Default()); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close()

	local := clock.NewLocal(quartz.NewReal(), cfg.Location)
	resolver := domain.NewGoalResolver(cfg.Goals)
	agg := domain.NewAggregator(store, resolver)
	builder := report.NewBuilder(store, agg)

	var notifier notify.Notifier = notify.NewLogNotifier(nil)
	if len(cfg.KafkaBrokers) > 0 {
		writer := notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.NotificationTopic)
		defer writer.Close()
		notifier = notify.NewKafkaNotifier(writer)
	}

	announcer := report.NewAnnouncer(notifier, cfg.ReportChannelID, nil)
	controller := domain.NewController(store, local, domain.WithObserver(announcer))

	var snapshotter gateway.Snapshotter = gateway.NoopSnapshotter{}
	if cfg.GatewayURL != "" {
		snapshotter = gateway.NewClient(cfg.GatewayURL, cfg.GatewayToken, cfg.HTTPTimeout)
	} else {
		log.Printf("GATEWAY_URL not set; startup recovery sees an empty area")
	}
	recoverPresent(ctx, snapshotter, cfg.MonitoredAreaID, cfg.HTTPTimeout, controller)

	var wg sync.WaitGroup

	if len(cfg.KafkaBrokers) > 0 {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroup,
			Topic:           cfg.PresenceTopic,
			MinBytes:        1,
			MaxBytes:        10e6,
			MaxWait:         time.Second,
			ReadLagInterval: -1,
		})
		handler := consumer.NewPresenceHandler(controller, announcer, cfg.MonitoredAreaID, nil)
		proc := consumer.NewProcessor(reader, handler)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			log.Printf("consumer started (topic=%s, group=%s)", cfg.PresenceTopic, cfg.ConsumerGroup)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("consumer stopped with error: %v", err)
			}
		}()
	} else {
		log.Printf("KAFKA_BROKERS not set; presence consumer disabled")
	}

	jobs := report.NewJobs(builder, notifier, store, cfg.ReportChannelID)
	driver := scheduler.NewDriver(local, store, jobs.Triggers(cfg.WeeklyMidWindow, cfg.WeeklyFinalWindow, cfg.MonthlyFinalWindow))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := driver.Run(ctx, cfg.SchedulerInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped with error: %v", err)
		}
	}()

	handler := api.NewHandler(store, agg, builder, local)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths)
	requestLog := log.New(log.Writer(), "[http] ", log.LstdFlags)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLogger(requestLog, authMiddleware.Wrap(mux)))

	go func() {
		log.Printf("attendanced listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	for running := true; running; {
		select {
		case <-reloadCh:
			reloadGoals(resolver)
		case <-shutdownCh:
			running = false
		}
	}

	log.Println("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	wg.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (attendanceStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresURL)
	default:
		return sqlite.Open(ctx, cfg.SQLitePath)
	}
}

// recoverPresent opens sessions for members already inside the area when the
// process starts. Failures are logged; snapshot events on the presence topic
// run the same recovery later.
func recoverPresent(ctx context.Context, snapshotter gateway.Snapshotter, areaID string, timeout time.Duration, controller *domain.Controller) {
	snapshotCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	present, err := snapshotter.PresentMembers(snapshotCtx, areaID)
	if err != nil {
		log.Printf("startup snapshot failed: %v", err)
		return
	}
	opened, err := controller.Recover(ctx, present)
	if err != nil {
		log.Printf("startup recovery incomplete: %v", err)
	}
	log.Printf("startup recovery: %d present, %d sessions opened", len(present), opened)
}

// reloadGoals re-reads the environment and goals file and swaps the goal table.
func reloadGoals(resolver *domain.GoalResolver) {
	next, err := config.Load()
	if err != nil {
		log.Printf("goal reload rejected: %v", err)
		return
	}
	resolver.Update(next.Goals)
	log.Printf("goals reloaded (default=%ds, groups=%d, users=%d)", next.Goals.DefaultSec, len(next.Goals.Groups), len(next.Goals.Users))
}
