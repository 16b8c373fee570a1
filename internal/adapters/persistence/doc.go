// Package persistence provides the key-value backends that hold the quote
// list and the selected category: an in-process map, a bbolt file, an SQLite
// file and a PostgreSQL table. Every backend implements ports.KeyValueStore
// and ports.HealthChecker.
package persistence
