package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/harun/metagen/pkg/resource"
)

// Built-in tool names
const (
	ToolGetMetadataSchema = "get_metadata_schema"
	ToolGetResourceData   = "get_resource_data"
)

// SupportedExtensions lists the file types get_resource_data can read.
var SupportedExtensions = []string{".csv", ".md", ".markdown"}

// UnsupportedResult is returned for files get_resource_data cannot read. It
// is a successful tool result so the model can report the problem itself.
type UnsupportedResult struct {
	Error               string   `json:"error"`
	SupportedExtensions []string `json:"supported_extensions"`
	ReceivedExtension   string   `json:"received_extension"`
}

// RegisterBuiltinTools registers get_metadata_schema and get_resource_data.
// Relative file paths are resolved against dataDir.
func RegisterBuiltinTools(reg *Registry, dataDir string) error {
	tools := []ToolDefinition{
		{
			Name:        ToolGetMetadataSchema,
			Description: "Get the JSON Schema that generated dataset metadata must follow.",
			Handler: func(_ context.Context, _ map[string]any) (any, error) {
				return json.RawMessage(MetadataSchema), nil
			},
		},
		{
			Name:        ToolGetResourceData,
			Description: "Get the content of a dataset file. CSV files return the column names and a sample of the first rows; Markdown files return extracted sections.",
			Parameters: []ToolParameter{
				{
					Name:        "filepath",
					Type:        "string",
					Description: "Path of the dataset file to read",
					Required:    true,
				},
			},
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				path, _ := args["filepath"].(string)
				return readResource(resolvePath(dataDir, path))
			},
		},
	}

	for _, def := range tools {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}
	return nil
}

func resolvePath(dataDir, path string) string {
	if filepath.IsAbs(path) || dataDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(dataDir, path)
}

func readResource(path string) (any, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".csv":
		preview, err := resource.ReadCSV(path)
		if err != nil {
			return nil, &ToolError{Kind: resource.Kind(err), Err: err}
		}
		return preview, nil

	case ".md", ".markdown":
		result, err := resource.ReadMarkdown(path, resource.MaxDocuments)
		if err != nil {
			return nil, &ToolError{Kind: resource.Kind(err), Err: err}
		}
		return result, nil

	default:
		return UnsupportedResult{
			Error:               "Unsupported file type",
			SupportedExtensions: SupportedExtensions,
			ReceivedExtension:   ext,
		}, nil
	}
}
