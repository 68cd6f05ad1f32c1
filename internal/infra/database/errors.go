package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/totegamma/trustledger/internal/domain"
)

// SQLSTATE codes that mean "try again": serialization failure, deadlock and
// lock not available.
var conflictCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// TranslateError maps driver and gorm errors onto the domain error kinds.
// The original error stays reachable through errors.Is/As.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", domain.ErrEntityNotFound, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %w", domain.ErrEntityNotFound, err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if conflictCodes[pgErr.Code] {
			return fmt.Errorf("%w: %w", domain.ErrTransactionConflict, err)
		}
		// class 08: connection exception, 57P0x: server shutting down
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") {
			return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}

	return err
}
