// Package database opens the PostgreSQL and Redis connections, applies the
// versioned schema and maps Postgres constraint errors onto API error kinds.
//
// Stores run multi-statement writes through WithTx and pass driver errors
// through Classify, so a unique violation becomes a 409 and a foreign key
// violation (for example an unknown permission key) becomes a 400.
package database
