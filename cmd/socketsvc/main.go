package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/nats"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/whodidichoose/configs"

	"github.com/avvvet/whodidichoose/internal/socketsvc/broker"
	"github.com/avvvet/whodidichoose/internal/socketsvc/handlers"
	"github.com/avvvet/whodidichoose/internal/socketsvc/routes"
	"github.com/avvvet/whodidichoose/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

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

	// Connect to NATS
	n, err := nats.Connect("socketsvc-"+instanceId, settings.NatsURL, settings.NatsToken)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(settings.AllowedOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(settings.RateLimit, 1*time.Minute))

	// Initialize websocket state
	s := ws.NewWs()

	// Initialize broker; replies from gamesvc are relayed to their sockets
	b := broker.NewBroker(n.Conn, s.Relay)
	s.Broker = b

	// Initialize routes
	h := handlers.NewHandler(s, settings.AllowedOrigins, settings.SocketServicePort)
	routes.SetRoutes(r, h, routes.InitAuth(settings.JWTSecret))

	// subscribe to game server
	sub, err := b.Subscribe(comm.TopicGameService)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s %v", comm.TopicGameService, err)
	}

	// Create server with timeout settings
	server := &http.Server{
		Addr:        ":" + settings.SocketServicePort,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
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

	if err := sub.Unsubscribe(); err != nil {
		log.Warnf("unsubscribe %s: %v", comm.TopicGameService, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
