//go:build !(cgo && sqlite3_cgo)

package db

// Pure Go (wazero) driver, the default for release builds.
import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
