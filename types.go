package sfmcp

// QueryInput is the input for the query tool.
type QueryInput struct {
	Statement string `json:"statement"`
}

// QueryOutput is the output of the query tool. All failures (policy
// rejections, connection failures, Snowflake errors, Go errors) are placed
// in Error; matching guidance hints are appended to the message. Callers
// only need to check Error, never a Go error.
type QueryOutput struct {
	Columns       []string                 `json:"columns"`
	Rows          []map[string]interface{} `json:"rows"`
	StatementType string                   `json:"statement_type,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

// ListObjectsInput is the input for the list_objects tool.
type ListObjectsInput struct {
	ObjectType string `json:"object_type"`
	// Like filters results with a SQL pattern (SHOW ... LIKE).
	Like string `json:"like,omitempty"`
	// Database scopes the listing for schema-level objects.
	Database string `json:"database,omitempty"`
	// Schema scopes the listing for table-level objects. Requires Database.
	Schema string `json:"schema,omitempty"`
}

// DescribeObjectInput is the input for the describe_object tool. Name may be
// qualified (db.schema.object).
type DescribeObjectInput struct {
	ObjectType string `json:"object_type"`
	Name       string `json:"name"`
}

// CreateMode selects the collision behavior of create_object.
type CreateMode string

const (
	// CreateErrorIfExists fails when the object already exists.
	CreateErrorIfExists CreateMode = ""
	// CreateOrReplace replaces an existing object.
	CreateOrReplace CreateMode = "or_replace"
	// CreateIfNotExists succeeds without change when the object exists.
	CreateIfNotExists CreateMode = "if_not_exists"
)

// CreateObjectInput is the input for the create_object tool.
type CreateObjectInput struct {
	ObjectType string     `json:"object_type"`
	Name       string     `json:"name"`
	Mode       CreateMode `json:"mode,omitempty"`
}

// DropObjectInput is the input for the drop_object tool.
type DropObjectInput struct {
	ObjectType string `json:"object_type"`
	Name       string `json:"name"`
	IfExists   bool   `json:"if_exists,omitempty"`
}

// ObjectOutput is the output of every object management tool. Statement is
// the SQL the tool assembled and ran, so the caller can see exactly what was
// executed.
type ObjectOutput struct {
	Statement string                   `json:"statement,omitempty"`
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	Error     string                   `json:"error,omitempty"`
}
