package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	config "github.com/avvvet/whodidichoose/configs"
	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/broker"
	"github.com/avvvet/whodidichoose/internal/gamesvc/db"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	natscli "github.com/avvvet/whodidichoose/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "guess"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

// guesssvc is the only service that reads a player's chosen card on behalf
// of the other player.
func main() {
	settings, err := config.LoadSettings(config.NewViper())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	config.SetLevel(settings.LogLevel)

	// pg connection
	dbpool, err := db.Connect(settings.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	// NATS connection
	n, err := natscli.Connect("guesssvc-"+instanceId, settings.NatsURL, settings.NatsToken)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer n.Conn.Close()
	log.Infof("NATS connected at %s", n.Url)

	resolver := service.NewLocalResolver(store.NewPlayerStore(dbpool))

	sub, err := broker.ServeGuesses(n.Conn, resolver)
	if err != nil {
		log.Fatalf("Subscribe %s error: %v", comm.TopicGuessResolve, err)
	}
	log.Infof("%s service answering %s", SERVICE_NAME, comm.TopicGuessResolve)

	// liveness probe only, guesses never travel over http here
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !n.Conn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"service":  SERVICE_NAME,
			"instance": instanceId,
			"nats":     n.Conn.Status().String(),
		})
	})
	server := &http.Server{
		Addr:         ":" + settings.GuessServicePort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Drain(); err != nil {
		log.Warnf("drain %s: %v", comm.TopicGuessResolve, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("%s service shutdown: %v", SERVICE_NAME, err)
	}
	log.Infof("%s service stopped", SERVICE_NAME)
}
