package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Server struct {
	AppEnv   string
	LogLevel string

	HTTPPort string
	GRPCPort string

	MongoURI            string
	MongoDBName         string
	MongoConnectTimeout time.Duration
	MongoSelectTimeout  time.Duration
	MongoMaxPoolSize    uint64
	MongoMinPoolSize    uint64

	RedisAddr     string
	RedisPassword string

	KafkaBrokers  []string
	CheckoutTopic string

	JWTSecret string

	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	HealthInterval     time.Duration
}

func LoadServer() Server {
	return Server{
		AppEnv:              getEnv("APP_ENV", "dev"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		GRPCPort:            getEnv("GRPC_PORT", "50052"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:         getEnv("MONGO_DB_NAME", "cartdb"),
		MongoConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		MongoSelectTimeout:  getEnvDuration("MONGO_SERVER_SELECTION_TIMEOUT", 5*time.Second),
		MongoMaxPoolSize:    getEnvUint("MONGO_MAX_POOL_SIZE", 50),
		MongoMinPoolSize:    getEnvUint("MONGO_MIN_POOL_SIZE", 5),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:        getEnvList("KAFKA_BROKERS", nil),
		CheckoutTopic:       getEnv("CHECKOUT_TOPIC", "checkout-outbox"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		RequestTimeout:      getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize:  int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		HealthInterval:      getEnvDuration("HEALTH_INTERVAL", 10*time.Second),
	}
}

type Client struct {
	LogLevel  string
	APIURL    string
	Token     string
	StatePath string

	SyncDebounce   time.Duration
	RequestTimeout time.Duration
}

func LoadClient() Client {
	return Client{
		LogLevel:       getEnv("LOG_LEVEL", "warn"),
		APIURL:         getEnv("CART_API_URL", "http://localhost:8080"),
		Token:          getEnv("CART_TOKEN", ""),
		StatePath:      getEnv("CART_STATE_PATH", "cart-state.db"),
		SyncDebounce:   getEnvDuration("CART_SYNC_DEBOUNCE", 700*time.Millisecond),
		RequestTimeout: getEnvDuration("CART_REQUEST_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
