package adminapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/internal/webserver"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMSServerInfo represents database server information
type DBMSServerInfo struct {
	DatabaseType    string           `json:"database_type"`
	DatabaseVersion string           `json:"database_version"`
	ServerTime      string           `json:"server_time"`
	DatabaseSize    string           `json:"database_size,omitempty"`
	RowCounts       map[string]int64 `json:"row_counts"`
}

type tabler interface {
	TableName() string
}

func registerDbmsRoutes(srv *webserver.Server) {
	srv.ApiGET("/dbms/serverinfo", dbmsGetServerInfo)
	srv.ApiGET("/dbms/backup", dbmsBackupDatabase)
}

// ledgerTables lists the table names of the domain models in migration order.
func ledgerTables() []string {
	names := make([]string, 0, len(domain.Tables))
	for _, t := range domain.Tables {
		if tb, ok := t.(tabler); ok {
			names = append(names, tb.TableName())
		}
	}
	return names
}

// dbmsGetServerInfo returns database server information
func dbmsGetServerInfo(c echo.Context) error {
	db := GetAppContext(c).DB().WithContext(c.Request().Context())
	dbType := db.Dialector.Name()

	info := DBMSServerInfo{
		DatabaseType: dbType,
		ServerTime:   time.Now().Format("2006-01-02 15:04:05"),
		RowCounts:    make(map[string]int64),
	}

	switch dbType {
	case "postgres":
		db.Raw("SELECT version()").Scan(&info.DatabaseVersion)
		db.Raw("SELECT pg_size_pretty(pg_database_size(current_database()))").Scan(&info.DatabaseSize)
	case "sqlite":
		var version string
		db.Raw("SELECT sqlite_version()").Scan(&version)
		info.DatabaseVersion = "SQLite " + version

		var pageCount, pageSize int64
		db.Raw("PRAGMA page_count").Scan(&pageCount)
		db.Raw("PRAGMA page_size").Scan(&pageSize)
		info.DatabaseSize = formatSize(pageCount * pageSize)
	}

	for _, name := range ledgerTables() {
		var n int64
		if err := db.Table(name).Count(&n).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count rows", err.Error())
		}
		info.RowCounts[name] = n
	}
	return ok(c, info)
}

func formatSize(sizeBytes int64) string {
	switch {
	case sizeBytes < 1024:
		return fmt.Sprintf("%d B", sizeBytes)
	case sizeBytes < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(sizeBytes)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(sizeBytes)/(1024*1024))
	}
}

// dbmsBackupDatabase dumps the ledger tables as INSERT statements. The
// schema is recreated by the migration, so no DDL is written.
func dbmsBackupDatabase(c echo.Context) error {
	db := GetAppContext(c).DB().WithContext(c.Request().Context())
	now := time.Now()

	var dump strings.Builder
	dump.WriteString("-- MedsBot ledger backup\n")
	dump.WriteString(fmt.Sprintf("-- Generated at: %s\n", now.Format("2006-01-02 15:04:05")))
	dump.WriteString(fmt.Sprintf("-- Database type: %s\n\n", db.Dialector.Name()))

	for _, name := range ledgerTables() {
		dump.WriteString(fmt.Sprintf("-- Table: %s\n", name))
		if err := backupTableInserts(db, name, &dump); err != nil {
			zap.L().Error("adminapi: backup failed", zap.String("table", name), zap.Error(err))
			return fail(c, http.StatusInternalServerError, "BACKUP_FAILED", "Failed to dump table "+name, err.Error())
		}
		dump.WriteString("\n")
	}

	filename := fmt.Sprintf("medsbot_backup_%s.sql", now.Format("20060102_150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	return c.Blob(http.StatusOK, "application/sql", []byte(dump.String()))
}

func backupTableInserts(db *gorm.DB, table string, w *strings.Builder) error {
	rows, err := db.Table(table).Order("id").Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", quoteIdentifier(table), strings.Join(quoted, ", "))

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	literals := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range values {
			literals[i] = formatSQLValue(v)
		}
		w.WriteString(prefix)
		w.WriteString(strings.Join(literals, ", "))
		w.WriteString(");\n")
	}
	return rows.Err()
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// formatSQLValue formats a Go value as a SQL literal
func formatSQLValue(val interface{}) string {
	if val == nil {
		return "NULL"
	}
	switch v := val.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(v), "'", "''") + "'"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%v", v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "'" + v.Format(time.RFC3339Nano) + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", v), "'", "''") + "'"
	}
}
