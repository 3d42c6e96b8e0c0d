// Package database provides SQLite persistence for PinGrid Core.
//
// The controller keeps its durable state small: a single kv_store
// table holds the ownership registry's JSON snapshots, managed through
// KVStore. The package also runs embedded schema migrations and feeds
// the startup health check.
//
// Characteristics:
//   - WAL mode so reads don't block the (single) writer
//   - parameterised statements throughout
//   - database file restricted to 0600
//   - migrations are additive-only; each version ships .up.sql and
//     .down.sql pairs embedded in the binary
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//	kv := database.NewKVStore(db)
package database
