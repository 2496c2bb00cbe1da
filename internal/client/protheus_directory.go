package client

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/repository"
)

// companyPattern guards the table suffix, which cannot be a bind parameter.
var companyPattern = regexp.MustCompile(`^[0-9A-Z]{3}$`)

// ProtheusDirectory reads approval groups and approver limits from the ERP's
// SQL Server database.
//
// Tables (suffixed with the company code, e.g. SAL010):
//   - SAL: approval group members (AL_COD group, AL_APROV approver, AL_NIVEL level)
//   - SAK: approvers (AK_COD, AK_USER, AK_LIMMIN, AK_LIMMAX)
//   - SYS_USR: ERP users (USR_ID, USR_CODIGO login)
//
// An AK_LIMMAX of zero means the approver has no upper limit.
type ProtheusDirectory struct {
	db      *sql.DB
	query   string
	timeout time.Duration
}

// OpenProtheus opens and pings a SQL Server connection pool.
func OpenProtheus(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open protheus connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping protheus: %w", err)
	}
	return db, nil
}

// NewProtheusDirectory creates a directory over db for one company.
func NewProtheusDirectory(db *sql.DB, company string, timeout time.Duration) (*ProtheusDirectory, error) {
	company = strings.ToUpper(strings.TrimSpace(company))
	if !companyPattern.MatchString(company) {
		return nil, fmt.Errorf("invalid protheus company code %q", company)
	}
	return &ProtheusDirectory{
		db:      db,
		query:   buildProtheusQuery(company),
		timeout: timeout,
	}, nil
}

func buildProtheusQuery(company string) string {
	return fmt.Sprintf(`
		SELECT RTRIM(u.USR_CODIGO)      AS username,
		       CAST(al.AL_NIVEL AS INT) AS level,
		       ak.AK_LIMMIN             AS min_amount,
		       ak.AK_LIMMAX             AS max_amount
		FROM SAL%[1]s al
		JOIN SAK%[1]s ak ON ak.AK_COD = al.AL_APROV AND ak.D_E_L_E_T_ = ' '
		JOIN SYS_USR u   ON u.USR_ID = ak.AK_USER  AND u.D_E_L_E_T_ = ' '
		WHERE al.D_E_L_E_T_ = ' '
		  AND RTRIM(al.AL_COD) = @group
		  AND CAST(@amount AS DECIMAL(18,2)) >= ak.AK_LIMMIN
		  AND (ak.AK_LIMMAX = 0 OR CAST(@amount AS DECIMAL(18,2)) <= ak.AK_LIMMAX)
		ORDER BY al.AL_NIVEL, u.USR_CODIGO
	`, company)
}

// LookupApprovers returns the approvers of approvalGroup whose limits cover
// amount, lowest level first. An unknown group yields an empty list.
func (d *ProtheusDirectory) LookupApprovers(ctx context.Context, approvalGroup string, amount decimal.Decimal) ([]repository.DirectoryApprover, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	rows, err := d.db.QueryContext(ctx, d.query,
		sql.Named("group", strings.TrimSpace(approvalGroup)),
		sql.Named("amount", amount.StringFixed(2)),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to query protheus approvers")
	}
	defer rows.Close()

	var approvers []repository.DirectoryApprover
	for rows.Next() {
		var (
			a        repository.DirectoryApprover
			minLimit decimal.Decimal
			maxLimit decimal.Decimal
		)
		if err := rows.Scan(&a.Username, &a.Level, &minLimit, &maxLimit); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan protheus approver")
		}
		a.Username = strings.TrimSpace(a.Username)
		a.MinAmount = minLimit
		if !maxLimit.IsZero() {
			max := maxLimit
			a.MaxAmount = &max
		}
		approvers = append(approvers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read protheus approvers")
	}
	return approvers, nil
}
