package main

import (
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tracking-api/api"
	"tracking-api/push"
	"tracking-api/storage"
	"tracking-api/tasks"
	"tracking-api/token"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		log.Fatal("missing TOKEN_SECRET")
	}
	codec, err := token.New([]byte(secret))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	taskStore := tasks.NewStore(codec)

	var store api.ProfileStore
	if connStr := os.Getenv("STORAGE_CONNECTION_STRING"); connStr != "" {
		tableName := os.Getenv("PROFILES_TABLE")
		if tableName == "" {
			log.Fatal("missing PROFILES_TABLE")
		}
		ts, err := storage.NewTableStore(connStr, tableName)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = ts
	} else {
		dir := os.Getenv("PROFILES_DIR")
		if dir == "" {
			dir = "profiles"
		}
		fs, err := storage.NewFileStore(dir)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = fs
	}

	var deduper api.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		rc := redis.NewClient(redisOpts)

		store = storage.NewCache(store, rc, durationEnv("CACHE_TTL", 5*time.Minute))
		deduper = api.NewRedisDeduper(rc, durationEnv("DEDUPER_TTL", 24*time.Hour))
	}

	pushTimeout := durationEnv("PUSH_TIMEOUT", 8*time.Second)

	logger := log.New()
	dispatcher := push.NewDispatcher(pushTimeout, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("tracking_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, store, taskStore, dispatcher, deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// durationEnv reads a positive duration from the environment, falling
// back to def when unset. A value that is unparsable or not positive is
// fatal, quoting the value itself.
func durationEnv(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return d
}
