package mysql

import (
	"context"
	"database/sql"
	"strings"
)

// Variant identifies which MySQL-compatible server flavor we're talking
// to. The sync engine behaves identically across all three (spec §6:
// "a MySQL-compatible server"); nothing in the sync path calls
// DetectVariant, it only classifies the server for a caller that wants
// to report it.
type Variant string

const (
	VariantMySQL   Variant = "mysql"
	VariantMariaDB Variant = "mariadb"
	VariantTiDB    Variant = "tidb"
)

// DetectVariant inspects version_comment/VERSION() to classify the
// connected server.
func DetectVariant(ctx context.Context, db *sql.DB) (Variant, string, error) {
	var varName, comment string

	err := db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'version_comment'").Scan(&varName, &comment)
	if err != nil {
		return "", "", err
	}

	comment = strings.ToLower(comment)
	version := getVersion(ctx, db)

	switch {
	case strings.Contains(comment, "mariadb"):
		return VariantMariaDB, version, nil
	case strings.Contains(comment, "tidb"):
		return VariantTiDB, version, nil
	default:
		return VariantMySQL, version, nil
	}
}

func getVersion(ctx context.Context, db *sql.DB) string {
	var version string
	_ = db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version)
	if idx := strings.Index(version, "-"); idx > 0 {
		version = version[:idx]
	}
	return version
}
