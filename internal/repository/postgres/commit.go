package postgres

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"

	"github.com/jackc/pgx/v5"
)

type statement struct {
	sql  string
	args []any
}

var tables = map[string]string{
	domain.CollectionAccounts:    "accounts",
	domain.CollectionActivations: tableActivations,
	domain.CollectionWithdrawals: tableWithdrawals,
}

var columns = map[string]string{
	domain.FieldBalance:  "balance",
	domain.FieldIsActive: "is_active",
	domain.FieldStatus:   "status",
}

// Commit runs the write set in one transaction. Guarded rows are locked with
// FOR UPDATE before they are compared, so two commits expecting the same
// status serialize and the second one sees the first one's write.
func (s *Store) Commit(ctx context.Context, ws *domain.WriteSet) error {
	if err := ws.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, guard := range ws.Guards() {
		stmt, err := guardStatement(guard.Path)
		if err != nil {
			return err
		}
		var current string
		err = tx.QueryRow(ctx, stmt.sql, stmt.args...).Scan(&current)
		if notFound(err) {
			if guard.Path == domain.PaymentNumberPath {
				current = ""
			} else {
				return fmt.Errorf("%w: %s", repository.ErrNotFound, guard.Path)
			}
		} else if err != nil {
			return fmt.Errorf("failed to read %s: %w", guard.Path, err)
		}

		if current != domain.FormatValue(guard.Value) {
			return fmt.Errorf("%w: %s is %s, expected %s",
				repository.ErrPreconditionFailed, guard.Path, current, domain.FormatValue(guard.Value))
		}
	}

	for _, op := range ws.Mutations() {
		stmt, err := mutationStatement(op)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, stmt.sql, stmt.args...)
		if err != nil {
			return fmt.Errorf("apply %s %s: %w", op.Kind, op.Path, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, op.Path)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func guardStatement(p domain.Path) (statement, error) {
	ref, err := domain.ParsePath(p)
	if err != nil {
		return statement{}, err
	}
	if ref.Collection == domain.CollectionSettings {
		return statement{
			sql:  `SELECT value FROM settings WHERE key = $1 FOR UPDATE`,
			args: []any{ref.Field},
		}, nil
	}

	column := columns[ref.Field]
	if ref.Field == domain.FieldBalance {
		column = "balance::text"
	} else if ref.Field == domain.FieldIsActive {
		column = "is_active::text"
	}
	return statement{
		sql:  fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, column, tables[ref.Collection]),
		args: []any{ref.ID},
	}, nil
}

func mutationStatement(op domain.Op) (statement, error) {
	ref, err := domain.ParsePath(op.Path)
	if err != nil {
		return statement{}, err
	}

	if ref.Collection == domain.CollectionSettings {
		return statement{
			sql: `INSERT INTO settings (key, value) VALUES ($1, $2)
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			args: []any{ref.Field, domain.FormatValue(op.Value)},
		}, nil
	}

	table, column := tables[ref.Collection], columns[ref.Field]
	switch {
	case op.Kind == domain.OpIncrement:
		return statement{
			sql:  fmt.Sprintf(`UPDATE %s SET %s = %s + $1::numeric WHERE id = $2`, table, column, column),
			args: []any{op.Delta.String(), ref.ID},
		}, nil
	case ref.Field == domain.FieldIsActive:
		return statement{
			sql:  fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`, table, column),
			args: []any{op.Value, ref.ID},
		}, nil
	case ref.Field == domain.FieldBalance:
		return statement{
			sql:  fmt.Sprintf(`UPDATE %s SET %s = $1::numeric WHERE id = $2`, table, column),
			args: []any{domain.FormatValue(op.Value), ref.ID},
		}, nil
	default:
		return statement{
			sql:  fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`, table, column),
			args: []any{domain.FormatValue(op.Value), ref.ID},
		}, nil
	}
}
