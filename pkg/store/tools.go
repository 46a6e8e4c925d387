package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harun/mnemo/pkg/llm"
)

const listDisplayLimit = 10

// ListMemoriesTool enumerates stored keyword sets, ranked by match
// score when a filter is given.
func ListMemoriesTool(s *Store) llm.Tool {
	return llm.Tool{
		Name:        "list_memories",
		Description: "List memories matching the given keywords; each memory is identified by a unique keyword set",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Keywords to match against (optional; omit to list everything)",
				},
			},
			"required": []string{},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			query := keywordsParam(params, "keywords")

			var sets [][]string
			if len(query) > 0 {
				for _, result := range s.Search(query) {
					sets = append(sets, result.Keywords)
				}
			} else {
				for _, entry := range s.List() {
					sets = append(sets, entry.Keywords)
				}
			}
			return renderKeywordSets(sets, query), nil
		},
	}
}

// ReadMemoryTool returns a memory's content and version.
func ReadMemoryTool(s *Store) llm.Tool {
	return llm.Tool{
		Name:        "read_memory",
		Description: "Read the content of the memory identified by the given keyword set",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "The keyword set identifying the memory",
				},
			},
			"required": []string{"keywords"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			keywords := keywordsParam(params, "keywords")
			snapshot, err := s.Read(keywords)
			if err != nil {
				return fmt.Sprintf("failed to read (%s): %v", joinKeywords(keywords), err), nil
			}
			return fmt.Sprintf("keywords: %s\nversion: %s\n\n%s",
				joinKeywords(snapshot.Keywords), snapshot.Version, snapshot.Content), nil
		},
	}
}

// CreateMemoryTool stores a new memory.
func CreateMemoryTool(s *Store) llm.Tool {
	return llm.Tool{
		Name:        "create_memory",
		Description: "Create a new memory",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "The keyword set identifying the memory; each keyword is lowercase letters and digits with at least one letter",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Memory content (Markdown, at most 1000 words)",
				},
			},
			"required": []string{"keywords", "content"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			keywords := keywordsParam(params, "keywords")
			snapshot, err := s.Create(ctx, keywords, stringParam(params, "content"))
			if err != nil {
				return fmt.Sprintf("failed to create (%s): %v", joinKeywords(keywords), err), nil
			}
			return fmt.Sprintf("created memory (%s), version %s",
				joinKeywords(snapshot.Keywords), snapshot.Version), nil
		},
	}
}

// UpdateMemoryTool replaces one fragment of an existing memory.
func UpdateMemoryTool(s *Store) llm.Tool {
	return llm.Tool{
		Name:        "update_memory",
		Description: "Update an existing memory by replacing a fragment of its content",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "The keyword set identifying the memory to update",
				},
				"old_content": map[string]interface{}{
					"type":        "string",
					"description": "The fragment to replace (must occur exactly once in the memory)",
				},
				"new_content": map[string]interface{}{
					"type":        "string",
					"description": "The replacement text",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "The memory's current version",
				},
			},
			"required": []string{"keywords", "old_content", "new_content", "version"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			keywords := keywordsParam(params, "keywords")
			snapshot, err := s.Update(ctx, keywords,
				stringParam(params, "version"),
				stringParam(params, "old_content"),
				stringParam(params, "new_content"))
			if err != nil {
				return fmt.Sprintf("failed to update (%s): %v", joinKeywords(keywords), err), nil
			}
			return fmt.Sprintf("updated memory (%s), new version %s",
				joinKeywords(snapshot.Keywords), snapshot.Version), nil
		},
	}
}

// ReassignMemoryTool renames a memory's keyword set, keeping its
// content.
func ReassignMemoryTool(s *Store) llm.Tool {
	return llm.Tool{
		Name:        "reassign_memory",
		Description: "Rename the keyword set of a memory, keeping its content unchanged",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "The keyword set of the memory to rename",
				},
				"new_keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "The new keyword set; each keyword is lowercase letters and digits with at least one letter",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "The memory's current version",
				},
			},
			"required": []string{"keywords", "new_keywords", "version"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			keywords := keywordsParam(params, "keywords")
			newKeywords := keywordsParam(params, "new_keywords")
			snapshot, err := s.Reassign(ctx, keywords, stringParam(params, "version"), newKeywords)
			if err != nil {
				return fmt.Sprintf("failed to reassign (%s): %v", joinKeywords(keywords), err), nil
			}
			return fmt.Sprintf("reassigned memory (%s) to (%s), new version %s",
				joinKeywords(keywords), joinKeywords(snapshot.Keywords), snapshot.Version), nil
		},
	}
}

// DeleteMemoryTool removes a memory.
func DeleteMemoryTool(s *Store) llm.Tool {
	return llm.Tool{
		Name:        "delete_memory",
		Description: "Delete the memory identified by the given keyword set",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "The keyword set identifying the memory to delete",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "The memory's current version",
				},
			},
			"required": []string{"keywords", "version"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			keywords := keywordsParam(params, "keywords")
			if err := s.Delete(keywords, stringParam(params, "version")); err != nil {
				return fmt.Sprintf("failed to delete (%s): %v", joinKeywords(keywords), err), nil
			}
			return fmt.Sprintf("deleted memory (%s)", joinKeywords(keywords)), nil
		},
	}
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func keywordsParam(params map[string]interface{}, key string) []string {
	raw, _ := params[key].([]interface{})
	keywords := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			keywords = append(keywords, s)
		}
	}
	return keywords
}

func joinKeywords(keywords []string) string {
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

func renderKeywordSets(sets [][]string, filter []string) string {
	if len(sets) == 0 {
		if len(filter) > 0 {
			return fmt.Sprintf("no memories match (%s)", joinKeywords(filter))
		}
		return "no memories stored yet"
	}

	var b strings.Builder
	if len(filter) > 0 {
		fmt.Fprintf(&b, "found %d memories matching (%s):\n", len(sets), joinKeywords(filter))
	} else {
		fmt.Fprintf(&b, "found %d memories:\n", len(sets))
	}

	for i, set := range sets {
		if i == listDisplayLimit {
			fmt.Fprintf(&b, "... and %d more", len(sets)-listDisplayLimit)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, joinKeywords(set))
	}
	return strings.TrimRight(b.String(), "\n")
}
