//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

const driverParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", withDriverParams(dataSource, driverParams))
}
