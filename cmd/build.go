package cmd

import (
	"fmt"

	"pgbackup/internal/connection"
	"pgbackup/internal/orchestrator"
	"pgbackup/internal/storage"
)

// buildOrchestrator assembles an Orchestrator from the flag-populated
// dbCfg/storageCfg globals plus the database name given on the command
// line, the way the teacher's cmd/backup.go wires engine+config+logger
// ad hoc per subcommand — collapsed here into one shared constructor since
// every subcommand needs the same wiring.
func buildOrchestrator(database string) (*orchestrator.Orchestrator, error) {
	dbCfg.Database = database
	if err := dbCfg.Validate(); err != nil {
		return nil, err
	}
	if err := storageCfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := storage.New(&storageCfg, log)
	if err != nil {
		return nil, fmt.Errorf("pgbackup: build storage backend: %w", err)
	}

	resolver, err := connection.NewResolver(nil, log)
	if err != nil {
		return nil, fmt.Errorf("pgbackup: build binary resolver: %w", err)
	}

	dbCopy := dbCfg
	return &orchestrator.Orchestrator{
		SourceName: sourceName,
		Database:   &dbCopy,
		Backend:    backend,
		Resolver:   resolver,
		Metrics:    metricsCol,
		Log:        log,
		Audit:      auditLogger,
	}, nil
}
