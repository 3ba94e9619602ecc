package localbackend

// DefaultOperations is the fixed, build-time operation table the local
// backend is constructed with: one entry per Notion REST endpoint this
// process is willing to ever call, whether or not it ends up on the
// read-only allowlist. It stands in for parsing the hosted OpenAPI
// description (operation-id, method, path) that an upstream
// tool-discovery loop would otherwise do against a live MCP server; here
// the surface is small and stable enough to hand-maintain as an
// embedded, OpenAPI-derived table rather than a network discovery call.
var DefaultOperations = []Operation{
	{OperationID: "retrieve-a-page", Method: "GET", Path: "/v1/pages/{page_id}", ToolName: "retrieve-a-page", Description: "Retrieve a page by ID."},
	{OperationID: "retrieve-a-page-property-item", Method: "GET", Path: "/v1/pages/{page_id}/properties/{property_id}", ToolName: "retrieve-a-page-property-item", Description: "Retrieve a page property item, paginated for list-valued properties."},
	{OperationID: "retrieve-a-block", Method: "GET", Path: "/v1/blocks/{block_id}", ToolName: "retrieve-a-block", Description: "Retrieve a block by ID."},
	{OperationID: "get-block-children", Method: "GET", Path: "/v1/blocks/{block_id}/children", ToolName: "get-block-children", Description: "List a block's direct children, paginated."},
	{OperationID: "retrieve-a-database", Method: "GET", Path: "/v1/databases/{database_id}", ToolName: "retrieve-a-database", Description: "Retrieve a database's schema by ID."},
	{OperationID: "query-a-database", Method: "POST", Path: "/v1/databases/{database_id}/query", ToolName: "query-a-database", Description: "Query a database's rows with filters and sorts."},
	{OperationID: "retrieve-a-data-source", Method: "GET", Path: "/v1/data_sources/{data_source_id}", ToolName: "retrieve-a-data-source", Description: "Retrieve a data source's schema by ID."},
	{OperationID: "query-a-data-source", Method: "POST", Path: "/v1/data_sources/{data_source_id}/query", ToolName: "query-a-data-source", Description: "Query a data source's rows with filters and sorts."},
	{OperationID: "retrieve-a-comment", Method: "GET", Path: "/v1/comments/{comment_id}", ToolName: "retrieve-a-comment", Description: "Retrieve a single comment by ID."},
	{OperationID: "retrieve-comments", Method: "GET", Path: "/v1/comments", ToolName: "retrieve-comments", Description: "List comments on a page or block."},
	{OperationID: "post-search", Method: "POST", Path: "/v1/search", ToolName: "post-search", Description: "Search pages and databases shared with the integration."},
	{OperationID: "get-users", Method: "GET", Path: "/v1/users", ToolName: "get-users", Description: "List all users in the workspace, paginated."},
	{OperationID: "get-user", Method: "GET", Path: "/v1/users/{user_id}", ToolName: "get-user", Description: "Retrieve a single user by ID."},
	{OperationID: "get-self", Method: "GET", Path: "/v1/users/me", ToolName: "get-self", Description: "Retrieve the bot user associated with this integration's token."},
	{OperationID: "retrieve-a-file-upload", Method: "GET", Path: "/v1/file_uploads/{file_upload_id}", ToolName: "retrieve-a-file-upload", Description: "Retrieve a file upload's status by ID."},
	{OperationID: "list-file-uploads", Method: "GET", Path: "/v1/file_uploads", ToolName: "list-file-uploads", Description: "List file uploads created by this integration."},

	{OperationID: "create-a-page", Method: "POST", Path: "/v1/pages", ToolName: "create-a-page", Description: "Create a new page."},
	{OperationID: "update-a-page", Method: "PATCH", Path: "/v1/pages/{page_id}", ToolName: "update-a-page", Description: "Update a page's properties or archive it."},
	{OperationID: "update-a-block", Method: "PATCH", Path: "/v1/blocks/{block_id}", ToolName: "update-a-block", Description: "Update a block's content."},
	{OperationID: "delete-a-block", Method: "DELETE", Path: "/v1/blocks/{block_id}", ToolName: "delete-a-block", Description: "Archive (soft-delete) a block."},
	{OperationID: "append-block-children", Method: "PATCH", Path: "/v1/blocks/{block_id}/children", ToolName: "append-block-children", Description: "Append new children under a block."},
	{OperationID: "create-a-database", Method: "POST", Path: "/v1/databases", ToolName: "create-a-database", Description: "Create a new database."},
	{OperationID: "update-a-database", Method: "PATCH", Path: "/v1/databases/{database_id}", ToolName: "update-a-database", Description: "Update a database's schema or title."},
	{OperationID: "create-a-comment", Method: "POST", Path: "/v1/comments", ToolName: "create-a-comment", Description: "Add a comment to a page or discussion thread."},
}

// ReadOnlyAllowlist is the fixed operation-id → HTTP method map the local
// backend enforces: any operation not present here is refused with
// READ_ONLY_OPERATION_BLOCKED even though it remains listed in
// DefaultOperations for tool discovery. Single source of truth for what
// "read-only" means in this process.
var ReadOnlyAllowlist = map[string]string{
	"retrieve-a-page":               "GET",
	"retrieve-a-page-property-item": "GET",
	"retrieve-a-block":              "GET",
	"get-block-children":            "GET",
	"retrieve-a-database":           "GET",
	"query-a-database":              "POST",
	"retrieve-a-data-source":        "GET",
	"query-a-data-source":           "POST",
	"retrieve-a-comment":            "GET",
	"retrieve-comments":             "GET",
	"post-search":                   "POST",
	"get-users":                     "GET",
	"get-user":                      "GET",
	"get-self":                      "GET",
	"retrieve-a-file-upload":        "GET",
	"list-file-uploads":             "GET",
}
