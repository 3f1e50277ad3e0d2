package conveyor_test

import (
	"context"
	"fmt"
	"log"

	"github.com/go-conveyor/conveyor"
)

// Example_storeAndFetch demonstrates the basic result lifecycle against an
// in-memory backend: store a task outcome, fetch it back, forget it.
func Example_storeAndFetch() {
	ctx := context.Background()

	backend, err := conveyor.NewInMemoryBackend(conveyor.BackendOptions{})
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close(ctx)

	taskID := "add-2-2"
	if err := backend.StoreResult(ctx, taskID, 4, conveyor.StateSuccess); err != nil {
		log.Fatal(err)
	}

	meta, err := backend.GetTaskMeta(ctx, taskID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("task %s: %s, result %v\n", meta.TaskID, meta.State, meta.Result)

	// A task id the backend has never seen reports pending, not an error.
	meta, err = backend.GetTaskMeta(ctx, "not-started-yet")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("task %s: %s\n", meta.TaskID, meta.State)

	// Output:
	// task add-2-2: SUCCESS, result 4
	// task not-started-yet: PENDING
}

// Example_groups demonstrates tracking a group of related tasks.
func Example_groups() {
	ctx := context.Background()

	backend, err := conveyor.NewInMemoryBackend(conveyor.BackendOptions{})
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close(ctx)

	if err := backend.SaveGroup(ctx, "batch-1", []string{"t1", "t2", "t3"}); err != nil {
		log.Fatal(err)
	}

	gm, err := backend.RestoreGroup(ctx, "batch-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("group %s has %d members\n", gm.GroupID, len(gm.Children))

	// Output:
	// group batch-1 has 3 members
}
