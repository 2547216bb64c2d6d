package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChatRelay/global/config"
	"ChatRelay/logger"
	"ChatRelay/middleware"
	"ChatRelay/service/api"
	"ChatRelay/service/auth"
	"ChatRelay/service/bridge"
	"ChatRelay/service/chat"
	"ChatRelay/service/chat/handlers"
	"ChatRelay/service/mgo"
	redisx "ChatRelay/service/storage/redis"
	"ChatRelay/service/store"
	"ChatRelay/tools/ids"
	"ChatRelay/tools/safe"

	"github.com/gin-gonic/gin"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(conf.LogLevel)
	ids.SetNodeID(conf.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgo.StartAsync(ctx, &mgo.Config{
		URI:         conf.MongoURI,
		Database:    conf.MongoDatabase,
		MaxPoolSize: 20,
	})

	var st store.MessageStore = store.NewMongoStore(conf.MessagesCollection)
	if conf.RedisAddr != "" {
		if rerr := redisx.Init(redisx.Config{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		}); rerr != nil {
			logger.Warnf("redis unavailable, serving history from mongo only: %v", rerr)
		} else {
			st = store.NewCachedStore(st, conf.CacheWindow)
		}
	}

	verifier := auth.NewJWTVerifier(
		auth.DefaultOptions([]byte(conf.JWTSecret)),
		store.NewMongoUsers(conf.UsersCollection),
	)

	reg := chat.NewRegistry()
	hub := chat.NewHub(reg, st, chat.HubConfig{
		FanoutWorkers: conf.FanoutWorkers,
		FanoutQueue:   conf.FanoutQueue,
		StrictPersist: conf.StrictPersist,
	})

	var br *bridge.Bridge
	if servers := conf.Servers(); len(servers) > 0 {
		br, err = bridge.New(bridge.Config{
			Servers: servers,
			Subject: conf.NatsSubject,
			NodeID:  fmt.Sprintf("relay-%d", conf.NodeID),
			Name:    "chatrelay",
		})
		if err != nil {
			logger.Warnf("relay bridge disabled: %v", err)
		} else {
			hub.SetBridge(br)
			if serr := br.Start(hub.DeliverRemote); serr != nil {
				logger.Warnf("relay bridge subscribe: %v", serr)
			}
		}
	}

	srv := chat.NewServer(chat.Config{
		AuthTimeout:   conf.AuthTimeout,
		HistoryLimit:  conf.HistoryLimit,
		SendQueueSize: conf.SendQueueSize,
	}, reg, hub, verifier, st)
	srv.Disp().Register(handlers.NewAuthHandler())
	srv.Disp().Register(handlers.NewMessageHandler())

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", middleware.Origin(conf.Origins()), srv.HandleWS)

	h := api.NewHandler(reg, st, conf.HistoryLimit)
	r.GET("/health", h.Health)
	r.GET("/api/messages", h.Messages)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Port),
		Handler: r,
	}
	safe.Go(func() {
		logger.Infof("listening on %s", httpServer.Addr)
		if serr := httpServer.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			logger.Errorf("http server: %v", serr)
			stop()
		}
	})

	<-ctx.Done()
	logger.Infof("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutCtx); serr != nil {
		logger.Warnf("http shutdown: %v", serr)
	}
	for _, c := range reg.Snapshot() {
		srv.Detach(c)
	}
	hub.Close()
	if br != nil {
		br.Close()
	}
	_ = redisx.Close()
}
