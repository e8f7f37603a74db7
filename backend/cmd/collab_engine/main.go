package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/cache"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/collab"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/httpapi/handlers"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/httpapi/middleware"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/mysqldb"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/presence"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/room"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/store"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/ws"
)

type EngineConfig struct {
	Running struct {
		Port       int  `mapstructure:"port"`
		EnableCORS bool `mapstructure:"enableCors"`
	} `mapstructure:"running"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Room struct {
		TTL                 time.Duration `mapstructure:"ttl"`
		MaxMembers          int           `mapstructure:"maxMembers"`
		MessageHistoryLimit int           `mapstructure:"messageHistoryLimit"`
	} `mapstructure:"room"`
	Collaboration struct {
		LockDefaultTTL       time.Duration `mapstructure:"lockDefaultTtl"`
		OperationsBufferSize int           `mapstructure:"operationsBufferSize"`
	} `mapstructure:"collaboration"`
	Presence struct {
		TTL                time.Duration `mapstructure:"ttl"`
		HeartbeatInterval  time.Duration `mapstructure:"heartbeatInterval"`
		OfflineGracePeriod time.Duration `mapstructure:"offlineGracePeriod"`
	} `mapstructure:"presence"`
}

func initConfig() (*EngineConfig, error) {
	cfg := &EngineConfig{}
	v := viper.New()
	v.SetConfigName("collabEngineConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis failed: %v", err)
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("open mysql failed: %v", err)
	}
	defer db.Close()

	gdb, err := gorm.Open(gormmysql.Open(cfg.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("open gorm failed: %v", err)
	}

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("connect kafka failed: %v", err)
	}
	defer producer.Close()

	clk := clock.New()
	kvStore := cache.NewRedisStore(rdb)

	kafkaSem := collab.NewSemaphoreControl(100)
	submitSem := collab.NewSemaphoreControl(100)

	// Kafka 本地队列 + worker 重试发送
	events := collab.NewEventDispatcher(producer, cfg.Kafka.Topic, kafkaSem, collab.EventDispatcherOptions{
		QueueSize:   10_000,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	})

	snapshots := store.NewSnapshotStore(db)
	membership := mysqldb.NewMembershipRepo(gdb)

	presenceSvc := presence.NewService(kvStore, clk, presence.Config{
		TTL:                cfg.Presence.TTL,
		HeartbeatInterval:  cfg.Presence.HeartbeatInterval,
		OfflineGracePeriod: cfg.Presence.OfflineGracePeriod,
	})
	roomSvc := room.NewService(kvStore, membership, clk, room.Config{
		TTL:                 cfg.Room.TTL,
		MaxMembers:          cfg.Room.MaxMembers,
		MessageHistoryLimit: cfg.Room.MessageHistoryLimit,
	})
	engine := collab.NewEngine(kvStore, snapshots, clk, events, collab.EngineConfig{
		BufferSize: cfg.Collaboration.OperationsBufferSize,
		DocTTL:     cfg.Room.TTL,
	})
	locks := collab.NewLockManager(kvStore, clk, cfg.Collaboration.LockDefaultTTL, events)

	hub := ws.NewHub()
	manager := ws.NewManager(hub, roomSvc, engine, locks, presenceSvc, submitSem)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	if cfg.Running.EnableCORS {
		r.Use(cors.New(cors.Config{
			AllowOriginFunc:  func(origin string) bool { return true },
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	api := r.Group("/collab")
	api.GET("/healthz", handlers.Healthz())
	api.GET("/stats", handlers.Stats(hub))
	// 鉴权中间件从 Authorization 或 ?token= 提取 token，写入 userId/username/tenantId
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.Auth.Secret))
	authed.GET("/ws", manager.WebSocketConnect)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := r.Run(fmt.Sprintf(":%d", cfg.Running.Port)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
