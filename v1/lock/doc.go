// Package lock provides the mutual-exclusion primitives a worker can be
// handed. Local is an in-process mutex; InMemory and Redis are keyed lockers
// that announce lock and unlock events through a syncbus Bus, and Keyed binds
// one key of such a locker to the Mutex interface. Keyed locks can carry an
// optional TTL to avoid deadlocks when a holder disappears.
package lock
