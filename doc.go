// Package sfmcp provides governed Snowflake access for AI agents through
// the Model Context Protocol (MCP).
//
// It exposes a query tool plus object management tools (list, describe,
// create, drop) backed by a permission-gated execution pipeline: every SQL
// statement is classified into a canonical statement type, checked against a
// configured allow/disallow policy, and only then executed on a single
// persistent, query-tagged Snowflake session. Results are sanitized field by
// field before they leave the server, and Snowflake errors are annotated
// with remediation hints so the agent can self-correct.
//
// # Library Usage
//
//	engine, err := sfmcp.New(ctx, params, sfmcp.Config{
//		Permissions: []sfmcp.PermissionEntry{
//			{StatementType: "select", Allowed: true},
//			{StatementType: "show", Allowed: true},
//			{StatementType: "drop", Allowed: false},
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close(ctx)
//
//	// Use directly
//	output := engine.Query(ctx, sfmcp.QueryInput{Statement: "SELECT 1"})
//
//	// Or register as MCP tools
//	sfmcp.RegisterMCPTools(mcpServer, engine)
//
// The permission policy fails closed: with no configured entries every
// statement is denied, and a statement type missing from a non-empty policy
// is denied as well. The single entry {"all": true} allows everything.
//
// Object management tools build their SQL from validated identifiers and do
// not consult the permission policy; restrict them by not registering them,
// or by role-level grants in Snowflake itself.
package sfmcp
