package migration

// Status reports the migration runner's current state against the
// configured Postgres database.
type Status struct {
	CurrentVersion  uint   `json:"current_version"`
	IsDirty         bool   `json:"is_dirty"`
	State           string `json:"state"` // "healthy", "dirty", "error", "not_initialized"
	Error           string `json:"error,omitempty"`
	MigrationsPath  string `json:"migrations_path"`
	TotalMigrations int    `json:"total_migrations"`
}
