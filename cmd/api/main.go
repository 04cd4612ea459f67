package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"paygate/internal/auth"
	"paygate/internal/broker"
	"paygate/internal/coins"
	"paygate/internal/commerce"
	"paygate/internal/httpapi"
	"paygate/internal/obs"
	"paygate/internal/store/pg"
)

var version = "0.3.1"

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("PAYGATE_COMMIT"))

	// Хранилище: postgres при заданном DSN, иначе in-memory (dev режим)
	var (
		authStore auth.Store
		entities  commerce.Service
		probe     httpapi.ReadyProbe
	)
	if dsn := os.Getenv("PAYGATE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		authStore = pgStore
		entities = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("PAYGATE_PG_DSN not set, using in-memory stores")
		authStore = auth.NewInMemoryStore()
		entities = commerce.NewInMemory()
	}

	// Брокер уведомлений: redis для многопроцессных инсталляций
	var b broker.Broker
	if addr := os.Getenv("PAYGATE_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		b = broker.NewRedis(client)
	} else {
		b = broker.NewMemory()
	}

	// Кошельковые демоны: PAYGATE_DAEMON_BTC=http://localhost:5000 и т.п.
	registry := coins.NewRegistry()
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "PAYGATE_DAEMON_") {
			continue
		}
		currency := strings.ToLower(strings.TrimPrefix(key, "PAYGATE_DAEMON_"))
		if currency == "" || value == "" {
			continue
		}
		registry.Register(currency, coins.NewDaemon(value))
		log.Printf("registered %s daemon at %s", currency, value)
	}

	api := httpapi.New(probe, version, auth.NewService(authStore), entities, registry, b)

	addr := os.Getenv("PAYGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// WriteTimeout не задан: live сессии держат соединение открытым
	}

	log.Printf("Starting paygate-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
