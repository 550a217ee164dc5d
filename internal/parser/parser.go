// Package parser extracts frontmatter, wikilinks, tags and an ordered block
// list from Markdown content.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`(!?)\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Link types.
const (
	LinkWikilink = "wikilink"
	LinkEmbed    = "embed"
)

// Link is one outgoing reference found in the body.
type Link struct {
	Target  string
	Type    string
	Heading string // "#Heading" suffix, without the hash
	Block   int    // position of the first block containing the link
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []Link
	Tags        []string
	Title       string
	Blocks      []Block
}

// Targets returns the distinct link targets in order of first appearance.
func (r *Result) Targets() []string {
	seen := make(map[string]struct{}, len(r.Links))
	var out []string
	for _, l := range r.Links {
		if _, ok := seen[l.Target]; ok {
			continue
		}
		seen[l.Target] = struct{}{}
		out = append(out, l.Target)
	}
	return out
}

// Parse extracts frontmatter, body, blocks, wikilinks, and tags from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, bodyOffset := splitFrontmatter(data)

	blocks := splitBlocks(body, bodyOffset)
	links := extractLinks(blocks)
	tags := extractTags(blocks, fm)
	title := deriveTitle(fm, body)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       links,
		Tags:        tags,
		Title:       title,
		Blocks:      blocks,
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body and reports the byte offset at which the body starts.
// If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, int) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	lead := len(data) - len(trimmed)

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), 0
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), 0
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := bytes.TrimLeft(afterDelim, "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep everything as body.
		return nil, string(data), 0
	}

	offset := lead + len(delim) + idx + 1 + len(delim) + (len(afterDelim) - len(body))
	return fm, string(body), offset
}

// extractLinks returns wikilinks and embeds deduplicated by (target, type),
// normalising aliases and heading anchors. Code blocks are skipped.
func extractLinks(blocks []Block) []Link {
	type key struct{ target, typ string }
	seen := make(map[key]struct{})
	var out []Link
	for _, b := range blocks {
		if b.Type == BlockCode {
			continue
		}
		for _, m := range wikilinkRe.FindAllStringSubmatch(b.Content, -1) {
			typ := LinkWikilink
			if m[1] == "!" {
				typ = LinkEmbed
			}
			// [[Target|Alias]] -> Target, [[Target#Heading]] -> Target.
			target := m[2]
			if i := strings.Index(target, "|"); i >= 0 {
				target = target[:i]
			}
			var heading string
			if i := strings.Index(target, "#"); i >= 0 {
				heading = strings.TrimSpace(target[i+1:])
				target = target[:i]
			}
			target = strings.TrimSpace(target)
			if target == "" {
				continue
			}
			k := key{target, typ}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, Link{Target: target, Type: typ, Heading: heading, Block: b.Position})
		}
	}
	return out
}

// extractTags collects tags from the frontmatter "tags" field and inline #tags
// outside code blocks.
func extractTags(blocks []Block, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(strings.TrimPrefix(s, "#"))
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if fm != nil {
		switch v := fm["tags"].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
				add(s)
			}
		}
	}

	for _, b := range blocks {
		if b.Type == BlockCode {
			continue
		}
		for _, m := range tagRe.FindAllStringSubmatch(b.Content, -1) {
			add(m[1])
		}
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
