package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	mongoCtxTimeout       = 30 * time.Second
	mongoStartupTimeout   = 120 * time.Second
	mongoTerminateTimeout = 10 * time.Second
	mongoPingTimeout      = 2 * time.Second
	mongoPingRetryDelay   = 500 * time.Millisecond
	mongoPingRetries      = 5
	maxTestNameLength     = 40
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoCont testcontainers.Container
	errMongo  error
)

func sharedMongoURI(ctx context.Context) (string, error) {
	mongoOnce.Do(func() {
		req := testcontainers.ContainerRequest{
			Image:        "mongo:8",
			ExposedPorts: []string{"27017/tcp"},
			Env: map[string]string{
				"MONGO_INITDB_ROOT_USERNAME": "admin",
				"MONGO_INITDB_ROOT_PASSWORD": "admin123",
			},
			WaitingFor: wait.ForLog("Waiting for connections").WithStartupTimeout(mongoStartupTimeout),
		}

		cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			errMongo = fmt.Errorf("failed to start MongoDB container: %w", err)
			return
		}

		host, err := cont.Host(ctx)
		if err != nil {
			errMongo = fmt.Errorf("failed to get container host: %w", err)
			return
		}
		port, err := cont.MappedPort(ctx, "27017")
		if err != nil {
			errMongo = fmt.Errorf("failed to get container port: %w", err)
			return
		}

		mongoCont = cont
		mongoURI = fmt.Sprintf("mongodb://admin:admin123@%s", net.JoinHostPort(host, port.Port()))
	})

	return mongoURI, errMongo
}

// SetupTestMongoDB returns a database unique to the test inside the shared
// MongoDB container. The database is dropped on cleanup.
func SetupTestMongoDB(t *testing.T) *mongo.Database {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoStartupTimeout)
	defer cancel()

	uri, err := sharedMongoURI(ctx)
	if err != nil {
		t.Fatalf("Failed to get shared MongoDB container: %v", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	for i := range mongoPingRetries {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), mongoPingTimeout)
		err = client.Ping(pingCtx, nil)
		pingCancel()
		if err == nil {
			break
		}
		if i < mongoPingRetries-1 {
			time.Sleep(mongoPingRetryDelay)
		}
	}
	if err != nil {
		t.Fatalf("Failed to ping MongoDB after %d retries: %v", mongoPingRetries, err)
	}

	db := client.Database(testDBName(t.Name()))

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), mongoCtxTimeout)
		defer cleanupCancel()
		_ = db.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})

	return db
}

// testDBName derives a database name from the test name (MongoDB limit: 63 chars).
func testDBName(testName string) string {
	name := strings.NewReplacer("/", "_", " ", "_", ".", "_").Replace(testName)
	if len(name) > maxTestNameLength {
		hash := sha256.Sum256([]byte(name))
		name = name[:20] + "_" + hex.EncodeToString(hash[:])[:12]
	}
	return "aduser_test_" + name
}

// TerminateMongoDB stops the shared container. Call it from TestMain.
func TerminateMongoDB() {
	if mongoCont == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoTerminateTimeout)
	defer cancel()
	_ = mongoCont.Terminate(ctx)
}
