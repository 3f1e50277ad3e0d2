package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// GetMongoURI returns the URI of a shared Testcontainers Mongo instance.
// If the container cannot be started (e.g. Docker not available), the
// calling test is skipped.
func GetMongoURI(t *testing.T) string {
	t.Helper()

	mongoOnce.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		// Guard against Testcontainers panicking (e.g. rootless Docker on Windows).
		defer func() {
			if r := recover(); r != nil {
				mongoErr = fmt.Errorf("starting MongoDB testcontainer panicked: %v", r)
			}
		}()

		mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor: wait.ForAll(
					wait.ForListeningPort("27017/tcp"),
					wait.ForLog("mongod startup complete"),
				).WithDeadline(60 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			mongoErr = err
			return
		}

		// IMPORTANT: we DO NOT tie cleanup to any specific test via t.Cleanup.
		// The container is shared; Docker/Testcontainers reap it at process exit.

		endpoint, err := mongoC.Endpoint(ctx, "")
		if err != nil {
			_ = mongoC.Terminate(context.Background()) // best-effort cleanup
			mongoErr = err
			return
		}

		mongoURI = fmt.Sprintf("mongodb://%s", endpoint)
	})

	if mongoErr != nil {
		t.Skipf("skipping Mongo tests: %v", mongoErr)
	}

	return mongoURI
}
