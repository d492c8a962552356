// Package postgres stores machines and execution records in PostgreSQL,
// running its schema migrations on startup.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowlocal/flowlocal/pkg/models"
	"github.com/flowlocal/flowlocal/pkg/statelang"
	"github.com/flowlocal/flowlocal/pkg/store"
	"github.com/flowlocal/flowlocal/pkg/store/sqlbase"

	_ "github.com/lib/pq" // postgres driver
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgres_store")

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func (s *Store) Machines(ctx context.Context) ([]*models.StateMachine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, mode, document, created_at FROM machines ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	machines := make([]*models.StateMachine, 0)

	for rows.Next() {
		machine, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}

		machines = append(machines, machine)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}

	return machines, nil
}

func (s *Store) MachineByID(ctx context.Context, id string) (*models.StateMachine, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, mode, document, created_at FROM machines WHERE id = $1", id)

	machine, err := scanMachine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewMachineError("MachineByID", id, store.ErrMachineNotFound)
	}

	if err != nil {
		return nil, store.NewMachineError("MachineByID", id, err)
	}

	return machine, nil
}

func (s *Store) SaveMachine(ctx context.Context, machine *models.StateMachine) error {
	document, err := json.Marshal(machine.Document)
	if err != nil {
		return store.NewMachineError("SaveMachine", machine.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO machines (id, name, mode, document, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			mode = EXCLUDED.mode,
			document = EXCLUDED.document`,
		machine.ID, machine.Name, machine.Mode, document, machine.CreatedAt)
	if err != nil {
		return store.NewMachineError("SaveMachine", machine.ID, err)
	}

	return nil
}

func (s *Store) DeleteMachine(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM machines WHERE id = $1", id)
	if err != nil {
		return store.NewMachineError("DeleteMachine", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewMachineError("DeleteMachine", id, err)
	}

	if affected == 0 {
		return store.NewMachineError("DeleteMachine", id, store.ErrMachineNotFound)
	}

	return nil
}

func (s *Store) Executions(ctx context.Context, machineID string) ([]*models.Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine_id, status, input, output, error, cause, history, started_at, stopped_at
		FROM executions WHERE machine_id = $1 ORDER BY started_at`, machineID)
	if err != nil {
		return nil, fmt.Errorf("listing executions of machine %s: %w", machineID, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing executions of machine %s: %w", machineID, err)
	}

	return executions, nil
}

func (s *Store) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, machine_id, status, input, output, error, cause, history, started_at, stopped_at
		FROM executions WHERE id = $1`, id)

	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewExecutionError("ExecutionByID", id, store.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, store.NewExecutionError("ExecutionByID", id, err)
	}

	return exec, nil
}

func (s *Store) SaveExecution(ctx context.Context, exec *models.Execution) error {
	input, err := json.Marshal(exec.Input)
	if err != nil {
		return store.NewExecutionError("SaveExecution", exec.ID, err)
	}

	output, err := json.Marshal(exec.Output)
	if err != nil {
		return store.NewExecutionError("SaveExecution", exec.ID, err)
	}

	history, err := json.Marshal(exec.History)
	if err != nil {
		return store.NewExecutionError("SaveExecution", exec.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, machine_id, status, input, output, error, cause, history, started_at, stopped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			cause = EXCLUDED.cause,
			history = EXCLUDED.history,
			stopped_at = EXCLUDED.stopped_at`,
		exec.ID, exec.MachineID, exec.Status, input, output,
		exec.ErrorName, exec.Cause, history, exec.StartedAt, exec.StoppedAt)
	if err != nil {
		return store.NewExecutionError("SaveExecution", exec.ID, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMachine(row rowScanner) (*models.StateMachine, error) {
	var (
		machine  models.StateMachine
		document []byte
	)

	if err := row.Scan(&machine.ID, &machine.Name, &machine.Mode, &document, &machine.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(document, &machine.Document); err != nil {
		return nil, fmt.Errorf("decoding stored document: %w", err)
	}

	def, err := statelang.Load(machine.Document)
	if err != nil {
		return nil, fmt.Errorf("reloading stored definition: %w", err)
	}

	machine.Definition = def

	return &machine, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		exec      models.Execution
		input     []byte
		output    []byte
		history   []byte
		errName   sql.NullString
		cause     sql.NullString
		stoppedAt sql.NullTime
	)

	err := row.Scan(&exec.ID, &exec.MachineID, &exec.Status, &input, &output,
		&errName, &cause, &history, &exec.StartedAt, &stoppedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(input, &exec.Input); err != nil {
		return nil, fmt.Errorf("decoding stored input: %w", err)
	}

	if err := json.Unmarshal(output, &exec.Output); err != nil {
		return nil, fmt.Errorf("decoding stored output: %w", err)
	}

	if err := json.Unmarshal(history, &exec.History); err != nil {
		return nil, fmt.Errorf("decoding stored history: %w", err)
	}

	exec.ErrorName = errName.String
	exec.Cause = cause.String

	if stoppedAt.Valid {
		at := stoppedAt.Time
		exec.StoppedAt = &at
	}

	return &exec, nil
}
