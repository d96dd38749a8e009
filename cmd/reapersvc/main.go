package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/whodidichoose/configs"
	"github.com/avvvet/whodidichoose/internal/gamesvc/broker"
	"github.com/avvvet/whodidichoose/internal/gamesvc/db"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	natscli "github.com/avvvet/whodidichoose/internal/nats"
)

const SERVICE_NAME = "reaper"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

// reapersvc removes players that stopped sending heartbeats. Several
// instances may run; each eviction takes the game lock and rechecks
// last_seen.
func main() {
	settings, err := config.LoadSettings(config.NewViper())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	config.SetLevel(settings.LogLevel)

	if settings.PlayerTimeout == 0 {
		log.Infof("PLAYER_TIMEOUT is 0, %s service has nothing to do", SERVICE_NAME)
		return
	}

	// pg connection
	dbpool, err := db.Connect(settings.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	// Connect to NATS
	n, err := natscli.Connect("reapersvc-"+instanceId, settings.NatsURL, settings.NatsToken)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	pgStore := store.NewPgStore(dbpool)
	gameService := service.NewGameService(pgStore, broker.NewFeedPublisher(n.Conn), nil, nil, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(settings.ReaperInterval)
	defer ticker.Stop()

	log.Infof("%s service evicting players idle for %s every %s", SERVICE_NAME, settings.PlayerTimeout, settings.ReaperInterval)
	for {
		select {
		case <-ctx.Done():
			log.Infof("%s service stopped", SERVICE_NAME)
			return
		case <-ticker.C:
			evicted, err := gameService.EvictStale(ctx, settings.PlayerTimeout)
			if err != nil {
				log.Errorf("EvictStale error: %v", err)
				continue
			}
			if evicted > 0 {
				log.Infof("evicted %d idle players", evicted)
			}
		}
	}
}
