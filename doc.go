// Package conveyor provides pluggable result storage for asynchronous
// task execution.
//
// A result backend records what happened to a task: its state, its
// return value (or the error and traceback that killed it), and when it
// finished. Workers write records as tasks move through their lifecycle;
// clients poll them to learn outcomes. Groups of related tasks can be
// tracked together through group metadata records.
//
// # Backends
//
// Results can be stored in different systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - MongoDB (github.com/go-conveyor/conveyor/mongo)
//   - Redis (github.com/go-conveyor/conveyor/redis)
//
// All backends implement the same Backend interface, so application code
// is written once against the contract:
//
//	backend, err := conveyor.NewInMemoryBackend(conveyor.BackendOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer backend.Close(ctx)
//
//	taskID := conveyor.NewID()
//	if err := backend.StoreResult(ctx, taskID, 42, conveyor.StateSuccess); err != nil {
//		log.Fatal(err)
//	}
//
//	meta, err := backend.GetTaskMeta(ctx, taskID)
//
// Fetching a task id that was never stored is not an error; it reports a
// pending record, because an unknown task may simply not have started yet.
//
// # Serialization
//
// Results are encoded through a named serializer before storage. The
// serializer registry (pkg/serializer) ships json, yaml, msgpack, gob and
// bson codecs; the MongoDB backend defaults to bson and stores results
// natively inside its metadata documents.
//
// # Expiry
//
// Backends bound the lifetime of stored records. Redis maps expiry onto
// native key TTLs; the other backends implement Cleanup, which pkg/sweeper
// can run periodically.
package conveyor
