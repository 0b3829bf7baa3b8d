package cmd

import (
	"context"
	"errors"

	"pgbackup/internal/config"
	"pgbackup/internal/pgerr"
)

// exitCode maps an error returned by an Orchestrator operation to the §6
// exit codes collaborators (shell scripts, systemd units, cron) depend on:
// 0 success, 2 configuration, 3 connection, 4 storage, 5 dump/restore
// (external tool), 130 cancelled. Grounded on the teacher's error-hint
// mapping in internal/checks/error_hints.go, which translates raw errors
// into actionable categories the same way.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}

	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return 2
	}

	var pe *pgerr.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case pgerr.KindConfiguration:
			return 2
		case pgerr.KindConnection, pgerr.KindCompatibility:
			return 3
		case pgerr.KindStorage:
			return 4
		case pgerr.KindExternalTool:
			return 5
		case pgerr.KindCancelled:
			return 130
		}
	}
	return 1
}
