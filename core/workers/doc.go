// Package workers provides bounded, keyed worker pools.
//
// A Pool is split into shards, each served by a single goroutine with a
// bounded FIFO queue. Tasks submitted with the same key always land on the
// same shard and therefore run in submission order. When a shard queue is
// full the submitting goroutine runs the work itself (caller-runs) after
// draining the shard backlog, so nothing is dropped and ordering holds.
package workers
