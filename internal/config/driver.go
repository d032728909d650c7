package config

import (
	"fmt"
	"strings"
)

// Driver names a storage driver
type Driver string

const (
	DriverSQLite Driver = "sqlite" // embedded, one file per database
	DriverMongo  Driver = "mongo"  // MongoDB deployment
)

// ParseDriver converts a string to Driver, defaulting to DriverSQLite
func ParseDriver(s string) Driver {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mongo", "mongodb":
		return DriverMongo
	default:
		return DriverSQLite
	}
}

// Valid reports whether d names a known driver
func (d Driver) Valid() bool {
	return d == DriverSQLite || d == DriverMongo
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Driver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "sqlite":
		*d = DriverSQLite
	case "mongo", "mongodb":
		*d = DriverMongo
	default:
		return fmt.Errorf("unknown storage driver %q", text)
	}
	return nil
}
