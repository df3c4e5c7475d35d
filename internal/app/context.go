package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"pathway/internal/config"
	"pathway/internal/db"
	"pathway/internal/engine"
	"pathway/internal/kb"
	"pathway/internal/migrate"
)

// Bootstrap opens the workspace database, applies migrations and builds a
// Service from the workspace config and visa catalog. Empty configPath falls
// back to <workspace>/pathway.yml (defaults when absent); empty catalogPath
// loads the embedded catalog.
func Bootstrap(workspace, configPath, catalogPath string) (*sql.DB, Service, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, Service{}, err
	}
	conn, err := db.Open(workspace)
	if err != nil {
		return nil, Service{}, err
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		return nil, Service{}, fmt.Errorf("migrate: %w", err)
	}
	if configPath == "" {
		configPath = filepath.Join(workspace, "pathway.yml")
	}
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		conn.Close()
		return nil, Service{}, err
	}
	var base *kb.KnowledgeBase
	if catalogPath == "" {
		base, err = kb.Default()
	} else {
		base, err = kb.FromFile(catalogPath)
	}
	if err != nil {
		conn.Close()
		return nil, Service{}, err
	}
	return conn, NewService(conn, engine.New(base, cfg)), nil
}
