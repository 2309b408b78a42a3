package sfmcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers the query and object management tools on the
// given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, engine *SnowflakeMcp) {
	objectTypeList := strings.Join(ObjectTypes(), ", ")

	// Query tool
	queryTool := mcp.NewTool("run_snowflake_query",
		mcp.WithDescription("Execute a single SQL statement against Snowflake, subject to the configured statement permissions. Returns results as JSON."),
		mcp.WithString("statement",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
	)

	mcpServer.AddTool(queryTool, engine.loggedToolHandler("run_snowflake_query", engine.handleRunQuery))

	// ListObjects tool
	listTool := mcp.NewTool("list_objects",
		mcp.WithDescription("List Snowflake objects of a given type, optionally filtered with a LIKE pattern and scoped to a database or schema."),
		mcp.WithString("object_type",
			mcp.Required(),
			mcp.Description("Object type to list: "+objectTypeList),
		),
		mcp.WithString("like",
			mcp.Description("SQL LIKE pattern to filter names"),
		),
		mcp.WithString("database",
			mcp.Description("Database to scope the listing to"),
		),
		mcp.WithString("schema",
			mcp.Description("Schema to scope the listing to (requires database)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTool, engine.loggedToolHandler("list_objects", engine.handleListObjects))

	// DescribeObject tool
	describeTool := mcp.NewTool("describe_object",
		mcp.WithDescription("Describe a named Snowflake object."),
		mcp.WithString("object_type",
			mcp.Required(),
			mcp.Description("Object type: "+objectTypeList),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Object name, optionally qualified as db.schema.object"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTool, engine.loggedToolHandler("describe_object", engine.handleDescribeObject))

	// CreateObject tool
	createTool := mcp.NewTool("create_object",
		mcp.WithDescription("Create a Snowflake object that needs no required parameters (database, schema, warehouse, role, user)."),
		mcp.WithString("object_type",
			mcp.Required(),
			mcp.Description("Object type: "+objectTypeList),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Object name, optionally qualified as db.schema.object"),
		),
		mcp.WithString("mode",
			mcp.Description("Collision behavior: or_replace or if_not_exists; omit to fail on collision"),
		),
	)

	mcpServer.AddTool(createTool, engine.loggedToolHandler("create_object", engine.handleCreateObject))

	// DropObject tool
	dropTool := mcp.NewTool("drop_object",
		mcp.WithDescription("Drop a named Snowflake object."),
		mcp.WithString("object_type",
			mcp.Required(),
			mcp.Description("Object type: "+objectTypeList),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Object name, optionally qualified as db.schema.object"),
		),
		mcp.WithBoolean("if_exists",
			mcp.Description("Succeed when the object does not exist"),
		),
	)

	mcpServer.AddTool(dropTool, engine.loggedToolHandler("drop_object", engine.handleDropObject))
}

func (s *SnowflakeMcp) handleRunQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statement, err := req.RequireString("statement")
	if err != nil {
		return mcp.NewToolResultError("statement parameter is required"), nil
	}
	output := s.Query(ctx, QueryInput{Statement: statement})
	if output.Error != "" {
		return mcp.NewToolResultError(output.Error), nil
	}
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal query result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *SnowflakeMcp) handleListObjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectType, err := req.RequireString("object_type")
	if err != nil {
		return mcp.NewToolResultError("object_type parameter is required"), nil
	}
	output := s.ListObjects(ctx, ListObjectsInput{
		ObjectType: objectType,
		Like:       req.GetString("like", ""),
		Database:   req.GetString("database", ""),
		Schema:     req.GetString("schema", ""),
	})
	return objectToolResult(output)
}

func (s *SnowflakeMcp) handleDescribeObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectType, err := req.RequireString("object_type")
	if err != nil {
		return mcp.NewToolResultError("object_type parameter is required"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	output := s.DescribeObject(ctx, DescribeObjectInput{ObjectType: objectType, Name: name})
	return objectToolResult(output)
}

func (s *SnowflakeMcp) handleCreateObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectType, err := req.RequireString("object_type")
	if err != nil {
		return mcp.NewToolResultError("object_type parameter is required"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	output := s.CreateObject(ctx, CreateObjectInput{
		ObjectType: objectType,
		Name:       name,
		Mode:       CreateMode(req.GetString("mode", "")),
	})
	return objectToolResult(output)
}

func (s *SnowflakeMcp) handleDropObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectType, err := req.RequireString("object_type")
	if err != nil {
		return mcp.NewToolResultError("object_type parameter is required"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	output := s.DropObject(ctx, DropObjectInput{
		ObjectType: objectType,
		Name:       name,
		IfExists:   req.GetBool("if_exists", false),
	})
	return objectToolResult(output)
}

// RegisterConfigResource exposes the non-secret service configuration as a
// readable MCP resource so the agent can inspect which statement types are
// permitted.
func RegisterConfigResource(mcpServer *server.MCPServer, engine *SnowflakeMcp) {
	resource := mcp.NewResource("config://statement-permissions", "Statement permissions",
		mcp.WithResourceDescription("The configured SQL statement permissions and query limits"),
		mcp.WithMIMEType("application/json"),
	)
	mcpServer.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		permissions := make(map[string]bool, len(engine.config.Permissions))
		for _, e := range engine.config.Permissions {
			permissions[e.StatementType] = e.Allowed
		}
		payload, err := json.Marshal(map[string]interface{}{
			"sql_statement_permissions": permissions,
			"max_sql_length":            engine.config.Query.MaxSQLLength,
			"max_result_length":         engine.config.Query.MaxResultLength,
		})
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(payload),
			},
		}, nil
	})
}

// objectToolResult converts an ObjectOutput to an MCP tool result.
func objectToolResult(output *ObjectOutput) (*mcp.CallToolResult, error) {
	if output.Error != "" {
		return mcp.NewToolResultError(output.Error), nil
	}
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal object result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// loggedToolHandler wraps a tool handler to log request and response sizes.
func (s *SnowflakeMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		s.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", resultLength(result)).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request
// arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a tool
// result.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
