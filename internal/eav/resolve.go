package eav

import (
	"context"
	"path"
	"strings"

	"github.com/starford/kiln/internal/apperr"
)

// LinkNames returns every name a link can use to reach the note at notePath:
// the path, the path without extension, the base name without extension and the title.
func LinkNames(notePath, title string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	add(notePath)
	trimmed := strings.TrimSuffix(notePath, ".md")
	add(trimmed)
	add(path.Base(trimmed))
	add(title)
	return out
}

// ResolveTarget finds the entity a raw link target points at. It tries the
// exact path, the path with ".md", then an exact title match, and returns an
// empty ID without error when nothing matches.
func ResolveTarget(ctx context.Context, s EntityStorage, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", nil
	}
	candidates := []string{target}
	if !strings.HasSuffix(target, ".md") {
		candidates = append(candidates, target+".md")
	}
	for _, p := range candidates {
		e, err := s.GetEntityByPath(ctx, p)
		if err == nil {
			return e.ID, nil
		}
		if !apperr.IsNotFound(err) {
			return "", err
		}
	}

	byTitle, err := s.ListEntities(ctx, EntityFilter{Type: EntityNote, Title: target, Limit: 1})
	if err != nil {
		return "", err
	}
	if len(byTitle) > 0 {
		return byTitle[0].ID, nil
	}

	// Base name match anywhere in the kiln: "Note" -> "dir/Note.md".
	base := strings.TrimSuffix(target, ".md")
	if strings.Contains(base, "/") {
		return "", nil
	}
	all, err := s.ListEntities(ctx, EntityFilter{Type: EntityNote})
	if err != nil {
		return "", err
	}
	for _, e := range all {
		if path.Base(strings.TrimSuffix(e.Path, ".md")) == base {
			return e.ID, nil
		}
	}
	return "", nil
}
