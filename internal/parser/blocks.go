package parser

import (
	"strings"

	"github.com/starford/kiln/internal/blockhash"
)

// Block types.
const (
	BlockHeading   = "heading"
	BlockParagraph = "paragraph"
	BlockCode      = "code"
	BlockList      = "list"
	BlockQuote     = "quote"
	BlockTable     = "table"
	BlockRule      = "hr"
)

// Block is one top-level unit of Markdown content in document order.
type Block struct {
	Position int
	Type     string
	Content  string
	// Offset is the byte offset of the block within the whole file.
	Offset int
	// Level is the heading level (1-6); zero for other blocks.
	Level int
	// Parent is the position of the enclosing heading, -1 at top level.
	Parent int
	Hash   blockhash.Hash
}

type line struct {
	text  string
	start int
}

func splitLines(body string) []line {
	var out []line
	start := 0
	for start < len(body) {
		end := strings.IndexByte(body[start:], '\n')
		if end < 0 {
			out = append(out, line{text: body[start:], start: start})
			break
		}
		out = append(out, line{text: body[start : start+end], start: start})
		start += end + 1
	}
	return out
}

type headingRef struct {
	position int
	level    int
}

// splitBlocks cuts body into blocks. bodyOffset is added to every block offset
// so offsets address the original file.
func splitBlocks(body string, bodyOffset int) []Block {
	lines := splitLines(body)
	var (
		blocks []Block
		stack  []headingRef
	)

	emit := func(typ string, from, to, level int) {
		start := lines[from].start
		end := lines[to].start + len(lines[to].text)
		content := strings.TrimRight(body[start:end], "\r")

		pos := len(blocks)
		parent := -1
		if typ == BlockHeading {
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
		}
		if len(stack) > 0 {
			parent = stack[len(stack)-1].position
		}
		if typ == BlockHeading {
			stack = append(stack, headingRef{position: pos, level: level})
		}

		blocks = append(blocks, Block{
			Position: pos,
			Type:     typ,
			Content:  content,
			Offset:   bodyOffset + start,
			Level:    level,
			Parent:   parent,
			Hash:     blockhash.Sum(typ, []byte(content)),
		})
	}

	for i := 0; i < len(lines); {
		t := strings.TrimSpace(lines[i].text)
		switch {
		case t == "":
			i++

		case isFence(t):
			marker := t[:3]
			j := i + 1
			for j < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[j].text), marker) {
				j++
			}
			if j >= len(lines) {
				j = len(lines) - 1
			}
			emit(BlockCode, i, j, 0)
			i = j + 1

		case headingLevel(t) > 0:
			emit(BlockHeading, i, i, headingLevel(t))
			i++

		case isRule(t):
			emit(BlockRule, i, i, 0)
			i++

		case strings.HasPrefix(t, ">"):
			j := i
			for j+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[j+1].text), ">") {
				j++
			}
			emit(BlockQuote, i, j, 0)
			i = j + 1

		case strings.HasPrefix(t, "|"):
			j := i
			for j+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[j+1].text), "|") {
				j++
			}
			emit(BlockTable, i, j, 0)
			i = j + 1

		case isListItem(t):
			j := i
			for j+1 < len(lines) {
				next := lines[j+1].text
				if strings.TrimSpace(next) == "" {
					// A blank line continues the list only when an item or an
					// indented continuation follows it.
					if j+2 < len(lines) && continuesList(lines[j+2].text) {
						j += 2
						continue
					}
					break
				}
				if !continuesList(next) {
					break
				}
				j++
			}
			emit(BlockList, i, j, 0)
			i = j + 1

		default:
			j := i
			for j+1 < len(lines) {
				nt := strings.TrimSpace(lines[j+1].text)
				if nt == "" || startsBlock(nt) {
					break
				}
				j++
			}
			emit(BlockParagraph, i, j, 0)
			i = j + 1
		}
	}
	return blocks
}

func headingLevel(t string) int {
	n := 0
	for n < len(t) && t[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0
	}
	if n < len(t) && t[n] != ' ' && t[n] != '\t' {
		return 0
	}
	return n
}

func isFence(t string) bool {
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

func isRule(t string) bool {
	if len(t) < 3 {
		return false
	}
	c := t[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	count := 0
	for i := 0; i < len(t); i++ {
		switch t[i] {
		case c:
			count++
		case ' ', '\t':
		default:
			return false
		}
	}
	return count >= 3
}

func isListItem(t string) bool {
	if len(t) >= 2 && (t[0] == '-' || t[0] == '*' || t[0] == '+') && t[1] == ' ' {
		return true
	}
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	return i > 0 && i+1 < len(t) && (t[i] == '.' || t[i] == ')') && t[i+1] == ' '
}

func continuesList(raw string) bool {
	if strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t") {
		return strings.TrimSpace(raw) != ""
	}
	return isListItem(strings.TrimSpace(raw))
}

func startsBlock(t string) bool {
	return isFence(t) || headingLevel(t) > 0 || isRule(t) ||
		strings.HasPrefix(t, ">") || strings.HasPrefix(t, "|") || isListItem(t)
}
