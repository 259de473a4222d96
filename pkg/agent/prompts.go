package agent

import "fmt"

// SystemPrompt is the fixed instruction given to the metadata agent. The
// step order is advisory; nothing enforces it.
const SystemPrompt = `Generate dataset metadata following these steps:
1. Call get_metadata_schema (get format)
2. Call get_resource_data with filename (get data)
3. Return JSON matching schema
Output only valid JSON, no other text.`

// MetadataInstruction builds the user message asking for metadata of file.
func MetadataInstruction(file string) string {
	return fmt.Sprintf(
		"Generate dataset metadata for \"%s\". First check the metadata schema, then fetch the file data, and create metadata matching the schema.",
		file,
	)
}
