package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	c "github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/product"
	r "github.com/fjod/cartsync/internal/repository"
	"github.com/fjod/cartsync/internal/service"
	"github.com/redis/go-redis/v9"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"gotest.tools/v3/assert"
)

func TestParseCheckoutEvent(t *testing.T) {
	userID, err := parseCheckoutEvent([]byte(`{"checkout_id":"ch1","user_id":"123","total_amount":"1"}`))
	assert.NilError(t, err)
	assert.Equal(t, "123", userID)

	_, err = parseCheckoutEvent([]byte(`{"checkout_id":"ch1"}`))
	assert.ErrorIs(t, err, errMissingUserID)

	_, err = parseCheckoutEvent([]byte(`{"user_id":123}`))
	assert.Assert(t, err != nil)

	_, err = parseCheckoutEvent([]byte(`not json`))
	assert.Assert(t, err != nil)
}

func setupTestRedis(t *testing.T) (*c.RedisCache, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := c.NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, cleanup
}

func setupTestDB(t *testing.T) (*mongo.Database, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := r.ConnectMongoDB(ctx, r.MongoConfig{URI: uri, Database: "testdb"})
	require.NoError(t, err)

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return db, cleanup
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_ClearsCartOnCheckout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cache, cleanupRedis := setupTestRedis(t)
	defer cleanupRedis()
	db, cleanupDb := setupTestDB(t)
	defer cleanupDb()
	brokers, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	topic := "checkout-outbox"
	createTopic(t, brokers, topic)

	repo := r.NewMongoRepository(db)
	resolver := product.NewResolver(product.NewMongoStore(db))
	carts := service.NewCartService(repo, cache, resolver, nil)

	_, err := carts.SyncCart(ctx, "123", []domain.CartLine{{ProductID: "P1", Quantity: 1}})
	require.NoError(t, err)
	stored, err := repo.GetCart(ctx, "123")
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, "123", stored))

	poller := NewPoller(carts, topic, nil, brokers)
	defer poller.Close()

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}

	payload, err := json.Marshal(map[string]interface{}{
		"checkout_id":  "chId",
		"user_id":      "123",
		"total_amount": "1",
		"currency":     "rur",
		"completed_at": time.Time{},
	})
	require.NoError(t, err)

	err = w.WriteMessages(ctx,
		kafkaGo.Message{Key: []byte("bad"), Value: []byte(`{"checkout_id":"bad"}`)},
		kafkaGo.Message{Key: []byte("ghost"), Value: []byte(`{"checkout_id":"ghost","user_id":"never-synced"}`)},
		kafkaGo.Message{
			Key:     []byte("chId"),
			Value:   payload,
			Headers: []kafkaGo.Header{{Key: "event_type", Value: []byte("checkout")}},
		},
	)
	require.NoError(t, err)
	w.Close()

	go poller.Run(ctx)

	require.Eventually(t, func() bool {
		cart, errGet := repo.GetCart(ctx, "123")
		return errGet == nil && len(cart.Items) == 0
	}, 30*time.Second, 500*time.Millisecond)

	cached, err := cache.Get(ctx, "123")
	require.NoError(t, err)
	require.Empty(t, cached.Items)

	_, err = repo.GetCart(ctx, "never-synced")
	assert.ErrorIs(t, err, r.ErrCartNotFound)
}
