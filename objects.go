package sfmcp

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sfmcp/snowflake-mcp/internal/sferror"
)

// objectTool is the tool name attributed to object management errors.
const objectTool = "object_manager"

// objectKind describes how one Snowflake object type appears in SQL.
type objectKind struct {
	singular string // DESCRIBE/CREATE/DROP <singular>
	plural   string // SHOW <plural>
	// creatable marks types that CREATE accepts without required
	// parameters. Parameterized types (tables need columns, compute pools
	// need instance families) go through the query tool instead.
	creatable bool
	// scoped marks types that SHOW can narrow with IN DATABASE/SCHEMA.
	scoped bool
}

// objectKinds is the closed registry of supported object types, keyed by the
// object_type value tools accept.
var objectKinds = map[string]objectKind{
	"database":         {singular: "DATABASE", plural: "DATABASES", creatable: true},
	"schema":           {singular: "SCHEMA", plural: "SCHEMAS", creatable: true, scoped: true},
	"table":            {singular: "TABLE", plural: "TABLES", scoped: true},
	"view":             {singular: "VIEW", plural: "VIEWS", scoped: true},
	"stage":            {singular: "STAGE", plural: "STAGES", scoped: true},
	"warehouse":        {singular: "WAREHOUSE", plural: "WAREHOUSES", creatable: true},
	"role":             {singular: "ROLE", plural: "ROLES", creatable: true},
	"user":             {singular: "USER", plural: "USERS", creatable: true},
	"compute_pool":     {singular: "COMPUTE POOL", plural: "COMPUTE POOLS"},
	"image_repository": {singular: "IMAGE REPOSITORY", plural: "IMAGE REPOSITORIES", scoped: true},
}

// ObjectTypes returns the supported object_type values, sorted.
func ObjectTypes() []string {
	types := make([]string, 0, len(objectKinds))
	for t := range objectKinds {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// identifierPattern accepts unquoted Snowflake identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// validateIdentifier rejects anything that is not a plain unquoted Snowflake
// identifier. This is what keeps the assembled SQL injection-free: object
// names are never interpolated without passing here first.
func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("object name must not be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("object name exceeds 255 characters")
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid object name %q: only letters, digits, _ and $ are allowed, starting with a letter, _ or $", name)
	}
	return nil
}

// validateQualifiedName validates a possibly dot-qualified name
// (db.schema.object) part by part.
func validateQualifiedName(name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 3 {
		return fmt.Errorf("invalid object name %q: at most three dot-separated parts", name)
	}
	for _, part := range parts {
		if err := validateIdentifier(part); err != nil {
			return err
		}
	}
	return nil
}

// escapePattern escapes a string for a single-quoted SQL literal.
func escapePattern(pattern string) string {
	return strings.ReplaceAll(pattern, "'", "''")
}

// ListObjects runs SHOW for the requested object type, optionally filtered
// with LIKE and scoped to a database or schema. Object management tools do
// not consult the statement permission policy; restrict them by not
// registering them.
func (s *SnowflakeMcp) ListObjects(ctx context.Context, input ListObjectsInput) *ObjectOutput {
	kind, ok := objectKinds[input.ObjectType]
	if !ok {
		return objectError("", fmt.Errorf("unsupported object type %q, supported: %s", input.ObjectType, strings.Join(ObjectTypes(), ", ")))
	}

	var sb strings.Builder
	sb.WriteString("SHOW ")
	sb.WriteString(kind.plural)
	if input.Like != "" {
		fmt.Fprintf(&sb, " LIKE '%s'", escapePattern(input.Like))
	}
	switch {
	case input.Schema != "":
		if !kind.scoped {
			return objectError("", fmt.Errorf("object type %q cannot be scoped to a schema", input.ObjectType))
		}
		if input.Database == "" {
			return objectError("", fmt.Errorf("schema scope requires a database"))
		}
		if err := validateIdentifier(input.Database); err != nil {
			return objectError("", err)
		}
		if err := validateIdentifier(input.Schema); err != nil {
			return objectError("", err)
		}
		fmt.Fprintf(&sb, " IN SCHEMA %s.%s", input.Database, input.Schema)
	case input.Database != "":
		if !kind.scoped {
			return objectError("", fmt.Errorf("object type %q cannot be scoped to a database", input.ObjectType))
		}
		if err := validateIdentifier(input.Database); err != nil {
			return objectError("", err)
		}
		fmt.Fprintf(&sb, " IN DATABASE %s", input.Database)
	}

	return s.runObjectStatement(ctx, sb.String())
}

// DescribeObject runs DESCRIBE for one named object.
func (s *SnowflakeMcp) DescribeObject(ctx context.Context, input DescribeObjectInput) *ObjectOutput {
	kind, ok := objectKinds[input.ObjectType]
	if !ok {
		return objectError("", fmt.Errorf("unsupported object type %q, supported: %s", input.ObjectType, strings.Join(ObjectTypes(), ", ")))
	}
	if err := validateQualifiedName(input.Name); err != nil {
		return objectError("", err)
	}
	return s.runObjectStatement(ctx, fmt.Sprintf("DESCRIBE %s %s", kind.singular, input.Name))
}

// CreateObject runs CREATE for object types that need no required
// parameters. Parameterized creation (tables, compute pools) belongs to the
// query tool where the policy governs it.
func (s *SnowflakeMcp) CreateObject(ctx context.Context, input CreateObjectInput) *ObjectOutput {
	kind, ok := objectKinds[input.ObjectType]
	if !ok {
		return objectError("", fmt.Errorf("unsupported object type %q, supported: %s", input.ObjectType, strings.Join(ObjectTypes(), ", ")))
	}
	if !kind.creatable {
		return objectError("", fmt.Errorf("object type %q requires parameters and cannot be created with this tool, use the query tool instead", input.ObjectType))
	}
	if err := validateQualifiedName(input.Name); err != nil {
		return objectError("", err)
	}

	var statement string
	switch input.Mode {
	case CreateErrorIfExists:
		statement = fmt.Sprintf("CREATE %s %s", kind.singular, input.Name)
	case CreateOrReplace:
		statement = fmt.Sprintf("CREATE OR REPLACE %s %s", kind.singular, input.Name)
	case CreateIfNotExists:
		statement = fmt.Sprintf("CREATE %s IF NOT EXISTS %s", kind.singular, input.Name)
	default:
		return objectError("", fmt.Errorf("invalid create mode %q, supported: or_replace, if_not_exists", input.Mode))
	}
	return s.runObjectStatement(ctx, statement)
}

// DropObject runs DROP for one named object.
func (s *SnowflakeMcp) DropObject(ctx context.Context, input DropObjectInput) *ObjectOutput {
	kind, ok := objectKinds[input.ObjectType]
	if !ok {
		return objectError("", fmt.Errorf("unsupported object type %q, supported: %s", input.ObjectType, strings.Join(ObjectTypes(), ", ")))
	}
	if err := validateQualifiedName(input.Name); err != nil {
		return objectError("", err)
	}

	statement := fmt.Sprintf("DROP %s %s", kind.singular, input.Name)
	if input.IfExists {
		statement = fmt.Sprintf("DROP %s IF EXISTS %s", kind.singular, input.Name)
	}
	return s.runObjectStatement(ctx, statement)
}

// runObjectStatement executes an assembled object statement on the shared
// session and collects its result set.
func (s *SnowflakeMcp) runObjectStatement(ctx context.Context, statement string) *ObjectOutput {
	startTime := time.Now()

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
		wrapped := wrapObjectError(err)
		s.logger.Error().Err(wrapped).Str("statement", statement).Msg("object statement failed")
		return &ObjectOutput{Statement: statement, Error: s.guide.Annotate(wrapped.Error())}
	}

	result.Rows = s.sanitizer.Rows(result.Rows)
	s.logger.Info().
		Str("statement", statement).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(result.Rows)).
		Msg("object statement executed")

	return &ObjectOutput{Statement: statement, Columns: result.Columns, Rows: result.Rows}
}

// wrapObjectError attributes a failure to the object manager.
func wrapObjectError(err error) error {
	if e := sferror.As(err); e != nil {
		return e
	}
	return sferror.Execution(objectTool, err, 0)
}

// objectError builds an ObjectOutput for a failure before any SQL ran.
func objectError(statement string, err error) *ObjectOutput {
	return &ObjectOutput{Statement: statement, Error: err.Error()}
}
