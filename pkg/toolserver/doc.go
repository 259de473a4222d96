// Package toolserver serves metagen's dataset tools over JSON-RPC 2.0 on a
// WebSocket.
//
// The server implements the initialize, tools/list and tools/call methods of
// the Model Context Protocol. Tools are registered on a Registry with typed
// parameters; arguments are validated against the generated JSON Schema
// before a handler runs.
//
// Tool failures never surface as JSON-RPC errors. A missing file, a parse
// failure, invalid arguments or an unknown tool name all come back as a
// result with isError set and a payload of the form:
//
//	{"error": "...", "kind": "not_found"}
//
// Files of an unsupported type are not failures at all: get_resource_data
// answers with an UnsupportedResult listing the accepted extensions.
package toolserver
