// Package all wires all built-in storage backends into the storage factory.
// Importing it for side effects makes the kinds "postgres", "mssql", "mysql"
// and "sqlite" available to storage.New.
package all

import (
	_ "idremap/internal/storage/mssql"
	_ "idremap/internal/storage/mysql"
	_ "idremap/internal/storage/postgres"
	_ "idremap/internal/storage/sqlite"
)
