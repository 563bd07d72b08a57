package compile

import (
	"fmt"
	"regexp"
)

// identPattern is the only shape an identifier may have before quoting.
// Anything else is rejected, so quoting can never be escaped from inside.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect knows the placeholder and identifier-quoting rules of one target
// database, plus its time-bucketing expressions.
type Dialect interface {
	Name() string
	Placeholder(position int) string
	QuoteIdent(ident string) (string, error)
	TimeBucket(columnSQL, granularity string) (string, error)
}

type mysqlDialect struct{}

// MySQL is the dialect of the original power warehouse.
func MySQL() Dialect { return mysqlDialect{} }

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) QuoteIdent(ident string) (string, error) {
	if !identPattern.MatchString(ident) {
		return "", fmt.Errorf("identifier %q is not quotable", ident)
	}
	return "`" + ident + "`", nil
}

func (mysqlDialect) TimeBucket(columnSQL, granularity string) (string, error) {
	switch granularity {
	case "15m":
		return fmt.Sprintf("FROM_UNIXTIME(FLOOR(UNIX_TIMESTAMP(%s)/900)*900)", columnSQL), nil
	case "hour":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:00:00')", columnSQL), nil
	case "day":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", columnSQL), nil
	case "week":
		return fmt.Sprintf("YEARWEEK(%s, 1)", columnSQL), nil
	case "month":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", columnSQL), nil
	}
	return "", fmt.Errorf("unsupported granularity %q", granularity)
}

type postgresDialect struct{}

// Postgres is the dialect for the TimescaleDB executor.
func Postgres() Dialect { return postgresDialect{} }

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (postgresDialect) QuoteIdent(ident string) (string, error) {
	if !identPattern.MatchString(ident) {
		return "", fmt.Errorf("identifier %q is not quotable", ident)
	}
	return `"` + ident + `"`, nil
}

func (postgresDialect) TimeBucket(columnSQL, granularity string) (string, error) {
	switch granularity {
	case "15m":
		return fmt.Sprintf("to_timestamp(floor(extract(epoch from %s)/900)*900)", columnSQL), nil
	case "hour", "day", "week", "month":
		return fmt.Sprintf("date_trunc('%s', %s)", granularity, columnSQL), nil
	}
	return "", fmt.Errorf("unsupported granularity %q", granularity)
}
