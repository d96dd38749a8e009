package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/whodidichoose/configs"
	"github.com/avvvet/whodidichoose/internal/comm"
	mongodb "github.com/avvvet/whodidichoose/internal/db"
	"github.com/avvvet/whodidichoose/internal/gamesvc/broker"
	"github.com/avvvet/whodidichoose/internal/gamesvc/db"
	handlers "github.com/avvvet/whodidichoose/internal/gamesvc/handlers"
	"github.com/avvvet/whodidichoose/internal/gamesvc/history"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	nats "github.com/avvvet/whodidichoose/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "game"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	settings, err := config.LoadSettings(config.NewViper())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	config.SetLevel(settings.LogLevel)

	ctx := context.Background()

	// pg connection
	dbpool, err := db.Connect(settings.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	if err := db.Migrate(ctx, dbpool); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	// Connect to NATS
	n, err := nats.Connect("gamesvc-"+instanceId, settings.NatsURL, settings.NatsToken)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// round archive, optional
	var archive history.Archive = history.NoopArchive{}
	if settings.MongoURI != "" {
		database, err := mongodb.ConnectToDB(ctx, settings.MongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer database.Client().Disconnect(context.Background())

		archive, err = history.NewMongoArchive(ctx, database, settings.HistoryTTL)
		if err != nil {
			log.Fatalf("Failed to prepare round archive: %v", err)
		}
		log.Infof("round history archived to MongoDB database %s", database.Name())
	}

	pgStore := store.NewPgStore(dbpool)
	feed := broker.NewFeedPublisher(n.Conn)
	local := service.NewLocalResolver(pgStore)

	var resolver service.GuessResolver = local
	if settings.GuessResolver == config.ResolverNats {
		resolver = broker.NewGuessClient(n.Conn)
	}
	log.Infof("guesses resolved by %s resolver", settings.GuessResolver)

	gameService := service.NewGameService(pgStore, feed, resolver, archive, nil)
	cardService := service.NewCardService(pgStore, feed)

	// init peer message broker
	b := broker.NewBroker(n.Conn, gameService)

	// consume socket service commands, shared between gamesvc instances
	sub, err := b.QueueSubscribSocketService(comm.TopicSocketService, "gamesvc")
	if err != nil {
		log.Fatalf("Error: unable to subscribe to queue %v", err)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(settings.AllowedOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(settings.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(gameService, cardService, archive, local, settings.PublicURL, settings.GameServicePort)
	h.InitAuth(settings.JWTSecret, log.IsLevelEnabled(log.DebugLevel))
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + settings.GameServicePort,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Drain(); err != nil {
		log.Warnf("drain %s: %v", comm.TopicSocketService, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
