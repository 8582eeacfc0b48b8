// Package tags derives tags for notes added without any.
package tags

import (
	"bytes"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/starford/gitnotes/internal/markdown"
)

// SnippetTag marks notes containing at least one code block with a language.
const SnippetTag = "snippet"

const (
	maxKeywords     = 3
	minKeywordScore = 3.0
)

var (
	hashtagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	// Phrase boundaries: sentence punctuation and dashes surrounded by space.
	phraseSplitRe = regexp.MustCompile(`[.!?,;:\t"()'\[\]{}<>|*=]|\s-\s`)
	wordSplitRe   = regexp.MustCompile(`[^\p{L}\p{N}_+\-/]+`)
)

// Suggester computes automatic tags. The zero value is ready to use.
type Suggester struct{}

// Suggest implements the interpreter's tagger.
func (Suggester) Suggest(content string) []string {
	return Suggest(content)
}

// Suggest returns the automatic tags for content, in order:
// the snippet marker and each code language, frontmatter tags, inline
// #hashtags, then up to three frequent keywords from the prose.
func Suggest(content string) []string {
	var out orderedSet

	for _, s := range markdown.Sections(content) {
		out.add(SnippetTag)
		out.add(strings.ToLower(s.Language))
	}

	fm, body := splitFrontmatter(content)
	prose := markdown.Prose(body)

	for _, t := range frontmatterTags(fm) {
		out.add(Normalize(t))
	}
	for _, m := range hashtagRe.FindAllStringSubmatch(prose, -1) {
		out.add(Normalize(m[1]))
	}
	for _, k := range Keywords(prose) {
		out.add(k)
	}
	return out.items
}

// Normalize turns free text into a tag.
func Normalize(tag string) string {
	s := slug.Make(tag)
	if s == "" {
		s = strings.ToLower(strings.TrimSpace(tag))
	}
	return s
}

// splitFrontmatter separates YAML frontmatter between leading --- lines from
// the body. Content without valid frontmatter is all body.
func splitFrontmatter(content string) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft([]byte(content), "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, content
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, content
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, content
	}
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return fm, body
}

func frontmatterTags(fm map[string]any) []string {
	var out []string
	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Keywords ranks the words of text by their summed RAKE phrase scores and
// returns at most three scoring 3 or more.
func Keywords(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "`", ""))

	var phrases [][]string
	for _, fragment := range phraseSplitRe.Split(text, -1) {
		var current []string
		for _, w := range wordSplitRe.Split(fragment, -1) {
			w = strings.Trim(w, "-/")
			if w == "" || stopWords[w] {
				if len(current) > 0 {
					phrases = append(phrases, current)
					current = nil
				}
				continue
			}
			current = append(current, w)
		}
		if len(current) > 0 {
			phrases = append(phrases, current)
		}
	}

	freq := map[string]float64{}
	degree := map[string]float64{}
	for _, p := range phrases {
		for _, w := range p {
			freq[w]++
			degree[w] += float64(len(p))
		}
	}

	seen := map[string]bool{}
	wordScore := map[string]float64{}
	for _, p := range phrases {
		key := strings.Join(p, " ")
		if seen[key] {
			continue
		}
		seen[key] = true

		var score float64
		for _, w := range p {
			score += degree[w] / freq[w]
		}
		if score <= 1 {
			continue
		}
		for _, w := range p {
			if hasLetter(w) {
				wordScore[w] += score
			}
		}
	}

	words := make([]string, 0, len(wordScore))
	for w := range wordScore {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if wordScore[words[i]] != wordScore[words[j]] {
			return wordScore[words[i]] > wordScore[words[j]]
		}
		return words[i] < words[j]
	})

	var out []string
	for i, w := range words {
		if i == maxKeywords {
			break
		}
		if wordScore[w] >= minKeywordScore {
			out = append(out, w)
		}
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

type orderedSet struct {
	items []string
	seen  map[string]bool
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}
