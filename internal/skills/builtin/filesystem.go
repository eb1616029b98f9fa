// Package builtin registers the small set of concrete skills the default
// sub-agent capability surface and keyword auto-selection rules
// (internal/skills/policy.go) name: read_file, write_file, edit_file,
// list_files, exec, web_search, web_fetch. Grounded on the teacher's internal/tools package
// (filesystem.go, shell.go, web_search_ddg.go), restricted to a single
// workspace root per spec §5's sandboxing expectations rather than
// goclaw's full Docker-sandbox-or-host-direct duality (the container
// runtime itself is out of scope here — see DESIGN.md dropped teacher
// modules).
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arialabs/aria/internal/skills"
)

type readFileInput struct {
	Path string `json:"path"`
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// resolveInWorkspace joins rel onto workspace and rejects any path that
// escapes it via ".." traversal, matching the teacher's restrict-to-
// workspace path check.
func resolveInWorkspace(workspace, rel string) (string, error) {
	clean := filepath.Clean(filepath.Join(workspace, rel))
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	absClean, err := filepath.Abs(clean)
	if err != nil {
		return "", err
	}
	if absClean != absWorkspace && !strings.HasPrefix(absClean, absWorkspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace", rel)
	}
	return absClean, nil
}

// ReadFileSkill registers a workspace-scoped file reader.
func ReadFileSkill(workspace string) skills.Skill {
	return skills.Skill{
		Name:        "read_file",
		Description: "Read the contents of a file within the agent's workspace.",
		Schema:      skills.SchemaFor(readFileInput{}),
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			var in readFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			path, err := resolveInWorkspace(workspace, in.Path)
			if err != nil {
				return skills.ErrorResult(err.Error()), nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("read %q: %v", in.Path, err)), nil
			}
			return skills.NewResult(string(data)), nil
		},
	}
}

// WriteFileSkill registers a workspace-scoped file writer.
func WriteFileSkill(workspace string) skills.Skill {
	return skills.Skill{
		Name:        "write_file",
		Description: "Write content to a file within the agent's workspace, creating parent directories as needed.",
		Schema:      skills.SchemaFor(writeFileInput{}),
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			var in writeFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			path, err := resolveInWorkspace(workspace, in.Path)
			if err != nil {
				return skills.ErrorResult(err.Error()), nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return skills.ErrorResult(fmt.Sprintf("mkdir: %v", err)), nil
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return skills.ErrorResult(fmt.Sprintf("write %q: %v", in.Path, err)), nil
			}
			return skills.NewResult(fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)), nil
		},
	}
}

type editFileInput struct {
	Path       string `json:"path"`
	OldContent string `json:"oldContent"`
	NewContent string `json:"newContent"`
}

// EditFileSkill registers an exact-string-replace editor, the workspace
// counterpart to write_file for targeted edits rather than full overwrites.
func EditFileSkill(workspace string) skills.Skill {
	return skills.Skill{
		Name:        "edit_file",
		Description: "Replace an exact substring within a workspace file.",
		Schema:      skills.SchemaFor(editFileInput{}),
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			var in editFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			path, err := resolveInWorkspace(workspace, in.Path)
			if err != nil {
				return skills.ErrorResult(err.Error()), nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("read %q: %v", in.Path, err)), nil
			}
			if !strings.Contains(string(data), in.OldContent) {
				return skills.ErrorResult("oldContent not found in file"), nil
			}
			updated := strings.Replace(string(data), in.OldContent, in.NewContent, 1)
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return skills.ErrorResult(fmt.Sprintf("write %q: %v", in.Path, err)), nil
			}
			return skills.NewResult("edit applied"), nil
		},
	}
}

type listFilesInput struct {
	Path string `json:"path"`
}

// ListFilesSkill registers a workspace directory lister.
func ListFilesSkill(workspace string) skills.Skill {
	return skills.Skill{
		Name:        "list_files",
		Description: "List files within a directory in the agent's workspace.",
		Schema:      skills.SchemaFor(listFilesInput{}),
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			var in listFilesInput
			_ = json.Unmarshal(input, &in)
			path, err := resolveInWorkspace(workspace, in.Path)
			if err != nil {
				return skills.ErrorResult(err.Error()), nil
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("list %q: %v", in.Path, err)), nil
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.IsDir() {
					names = append(names, e.Name()+"/")
				} else {
					names = append(names, e.Name())
				}
			}
			return skills.NewResult(strings.Join(names, "\n")), nil
		},
	}
}
