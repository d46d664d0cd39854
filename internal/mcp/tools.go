package mcp

import "file-manager-server/internal/models"

func stringProp(desc string) models.Schema {
	return models.Schema{"type": "string", "description": desc}
}

func numberProp(desc string) models.Schema {
	return models.Schema{"type": "number", "description": desc}
}

func objectSchema(props map[string]models.Schema, required ...string) models.Schema {
	s := models.Schema{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// toolCatalog is the closed set of commands the dispatcher accepts. Natural
// language interpretation happens entirely in the host; these schemas are
// all it has to work with.
func toolCatalog() []models.ToolDefinition {
	filterProp := stringProp("Extension filter, e.g. '.zip' or 'svg'. Empty matches all files.")
	directoryProp := stringProp("Directory to scan: 'downloads', 'documents', an absolute path, or a path relative to Downloads. Defaults to Downloads.")

	return []models.ToolDefinition{
		{
			Name:        "list_files",
			Description: "List files in a directory filtered by extension, sorted by date (newest first). Scans only the immediate directory.",
			InputSchema: objectSchema(map[string]models.Schema{
				"filter":    filterProp,
				"directory": directoryProp,
				"limit":     numberProp("Maximum number of files to return. 0 means no limit."),
			}),
			Annotations: models.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "list_recent",
			Description: "Show the most recently modified files in a directory (default: 10 newest in Downloads).",
			InputSchema: objectSchema(map[string]models.Schema{
				"filter":    filterProp,
				"directory": directoryProp,
				"limit":     numberProp("Number of recent files to show (default: 10)."),
			}),
			Annotations: models.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "find_latest",
			Description: "Find the single most recently modified file matching an extension filter.",
			InputSchema: objectSchema(map[string]models.Schema{
				"filter":    filterProp,
				"directory": directoryProp,
			}),
			Annotations: models.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "unzip_archive",
			Description: "Unzip an archive. Existing files at the destination are skipped, never overwritten.",
			InputSchema: objectSchema(map[string]models.Schema{
				"source":      stringProp("Archive path. Relative paths resolve under Downloads (e.g. 'archive.zip')."),
				"destination": stringProp("Where to extract: 'downloads', 'documents', or a specific path. Defaults to a folder named after the archive in Downloads."),
			}, "source"),
			Annotations: models.ToolAnnotations{},
		},
		{
			Name:        "move_files",
			Description: "Move all files matching an extension filter from a source directory (searched recursively) to a destination directory. Name collisions get a numeric suffix.",
			InputSchema: objectSchema(map[string]models.Schema{
				"filter":      filterProp,
				"source":      stringProp("Source directory to search. Defaults to Downloads."),
				"destination": stringProp("Destination directory: a subfolder of Documents (e.g. 'Icons', 'Projects/Icons'), an absolute path, 'downloads' or 'documents'. Created if missing."),
			}),
			Annotations: models.ToolAnnotations{DestructiveHint: true},
		},
		{
			Name:        "unzip_latest",
			Description: "Unzip the most recently downloaded zip file.",
			InputSchema: objectSchema(map[string]models.Schema{
				"directory":   directoryProp,
				"destination": stringProp("Where to extract. Defaults to a folder named after the archive in Downloads."),
			}),
			Annotations: models.ToolAnnotations{},
		},
		{
			Name:        "unzip_and_move",
			Description: "Unzip an archive and move all matching files (SVG by default) from the extracted folder to a subfolder of Documents.",
			InputSchema: objectSchema(map[string]models.Schema{
				"source":             stringProp("Archive path, relative to Downloads (e.g. 'project.zip')."),
				"filter":             stringProp("Extension of the files to move after extraction (default '.svg')."),
				"destination_folder": stringProp("Subfolder of Documents the files should go to (e.g. 'DoorHanger', 'Icons')."),
			}, "source", "destination_folder"),
			Annotations: models.ToolAnnotations{DestructiveHint: true},
		},
		{
			Name:        "unzip_latest_and_move",
			Description: "Unzip the most recently downloaded zip file and move all matching files (SVG by default) to a subfolder of Documents.",
			InputSchema: objectSchema(map[string]models.Schema{
				"filter":             stringProp("Extension of the files to move after extraction (default '.svg')."),
				"destination_folder": stringProp("Subfolder of Documents the files should go to (e.g. 'DoorHanger', 'Icons')."),
			}, "destination_folder"),
			Annotations: models.ToolAnnotations{DestructiveHint: true},
		},
	}
}
