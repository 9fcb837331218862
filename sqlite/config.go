package sqlite

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config carries the settings needed to open a SQLite-backed store.
type Config struct {
	// Path is the database file path, or ":memory:" for an in-memory
	// database.
	Path string

	// TablePrefix is prepended to every model's table name. Optional.
	TablePrefix string

	// BusyTimeoutMS is the SQLite busy timeout in milliseconds. Zero keeps
	// the driver default.
	BusyTimeoutMS int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.BusyTimeoutMS, validation.Min(0)),
	)
}
