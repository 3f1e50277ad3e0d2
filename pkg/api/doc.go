// Package api defines the public contract of the Conveyor result store:
// task states, the persisted metadata records, the Backend interface that
// every storage implementation satisfies, and the Observer used for
// instrumentation.
//
// Applications normally import the root conveyor package (or a backend
// package such as mongo or redis) rather than api directly; the root
// package re-exports everything defined here.
package api
