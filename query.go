package sfmcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/sfmcp/snowflake-mcp/internal/classify"
	"github.com/sfmcp/snowflake-mcp/internal/sferror"
)

// queryTool is the tool name attributed to gateway errors.
const queryTool = "query_manager"

// Query executes the full pipeline: classify, authorize, execute, collect.
// All failures (policy rejections, connection failures, Snowflake errors,
// Go errors) are converted to output.Error with matching guidance hints
// appended, so callers only need to check output.Error, never a Go error.
//
// The statement runs verbatim: no rewriting, no parameter binding, no
// retries. Rows are fetched eagerly; a statement that returns more than
// the configured result limit is truncated with an instruction to add
// limits.
func (s *SnowflakeMcp) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	statement := input.Statement

	if len(statement) > s.config.Query.MaxSQLLength {
		return s.handleError(fmt.Errorf("statement too long: %d bytes exceeds maximum of %d bytes", len(statement), s.config.Query.MaxSQLLength), "")
	}

	// 1. Classify. Never errors; unparseable input classifies as unknown.
	statementType := classify.Statement(statement)

	// 2. Authorize. A denial names the rejected type and never touches the
	// connection.
	if _, allowed := s.policy.Authorize(statementType); !allowed {
		return s.handleError(sferror.PermissionDenied(queryTool, statementType), statementType)
	}

	// 3. Refuse multi-statement input after the permission check so the
	// denial message still names the leading statement's type. Executing
	// only the first piece and dropping the rest would be worse than
	// rejecting outright.
	if pieces, err := classify.Split(statement); err == nil && len(pieces) > 1 {
		return s.handleError(fmt.Errorf("multi-statement input is not supported: got %d statements, submit one at a time", len(pieces)), statementType)
	}

	// 4. Execute on the persistent session and fetch eagerly.
	var result *QueryOutput
	err := s.manager.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, statement)
		if err != nil {
			return err
		}
		result, err = collectRows(rows)
		return err
	})
	if err != nil {
		return s.handleError(wrapExecutionError(err), statementType)
	}
	result.StatementType = statementType

	// 5. Sanitize and truncate before anything leaves the server.
	result.Rows = s.sanitizer.Rows(result.Rows)
	s.truncateIfNeeded(result)

	logEvent := s.logger.Info().
		Str("statement", truncateForLog(statement, 200)).
		Str("statement_type", statementType).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(result.Rows))
	if s.sanitizer.HasRules() {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("statement executed")

	return result
}

// collectRows drains rows into column-name-keyed maps. The rows cursor is
// closed on every exit path; the owning connection is untouched.
func collectRows(rows *sql.Rows) (*QueryOutput, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := make([]map[string]interface{}, 0)
	values := make([]interface{}, len(columns))
	scanArgs := make([]interface{}, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryOutput{Columns: columns, Rows: resultRows}, nil
}

// convertValue converts a driver-returned value to a JSON-friendly Go type.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case []byte:
		// BINARY columns; base64 keeps the payload JSON-safe.
		return base64.StdEncoding.EncodeToString(val)
	case map[string]interface{}:
		// Decoded VARIANT/OBJECT values.
		result := make(map[string]interface{}, len(val))
		for k, item := range val {
			result[k] = convertValue(item)
		}
		return result
	case []interface{}:
		// Decoded ARRAY values.
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = convertValue(item)
		}
		return result
	default:
		return val
	}
}

// convertFloat maps the IEEE values JSON cannot encode to strings.
func convertFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

// wrapExecutionError attributes a failure from the execute step. Snowflake
// errors carry a numeric code which is surfaced as the status code.
func wrapExecutionError(err error) error {
	if e := sferror.As(err); e != nil {
		return e
	}
	var se *sf.SnowflakeError
	if errors.As(err, &se) {
		return sferror.Execution(queryTool, err, se.Number)
	}
	return sferror.Execution(queryTool, err, 0)
}

// handleError converts any error into a QueryOutput with the error message,
// annotated with matching guidance hints.
func (s *SnowflakeMcp) handleError(err error, statementType string) *QueryOutput {
	errMsg := s.guide.Annotate(err.Error())

	logEvent := s.logger.Error().Err(err)
	if statementType != "" {
		logEvent = logEvent.Str("statement_type", statementType)
	}
	logEvent.Msg("statement failed")

	return &QueryOutput{StatementType: statementType, Error: errMsg}
}

// truncateIfNeeded drops rows whose JSON encoding exceeds MaxResultLength
// (in characters).
func (s *SnowflakeMcp) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= s.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:s.config.Query.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog bounds a statement for log output without splitting a rune.
func truncateForLog(str string, maxLen int) string {
	if len(str) <= maxLen {
		return str
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(str[truncateAt]) {
		truncateAt--
	}
	return str[:truncateAt] + "...[truncated]"
}
