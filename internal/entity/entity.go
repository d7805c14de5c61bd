// ABOUTME: Formatting entity extraction for outbound bot messages
// ABOUTME: Candidate scan with fixed priority, intersection rejection and marker stripping

package entity

import (
	"errors"
	"regexp"
	"sort"
)

// Parse modes accepted on send operations.
const (
	ModePlain    = "plain"
	ModeMarkdown = "markdown"
	ModeHTML     = "html"
)

// ErrUnknownParseMode is returned for parse modes other than plain,
// markdown and html.
var ErrUnknownParseMode = errors.New("unknown parse mode")

// Entity is one formatting span over the cleaned message text.
// Offset and Length are byte positions in the cleaned UTF-8 text.
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// Entity type names, stored with messages and sent to clients.
const (
	TypePre           = "pre"
	TypeCode          = "code"
	TypeSpoiler       = "spoiler"
	TypeBoldItalic    = "bold_italic"
	TypeBold          = "bold"
	TypeItalic        = "italic"
	TypeStrikethrough = "strikethrough"
	TypeUnderline     = "underline"
	TypeBlockquote    = "blockquote"
	TypeTextLink      = "text_link"
	TypeURL           = "url"
	TypeMention       = "mention"
	TypeHashtag       = "hashtag"
)

// pattern couples a regex with how to interpret its match: which group
// is the visible content and which (if any) carries a link target.
type pattern struct {
	typ       string
	re        *regexp.Regexp
	textGroup int  // submatch index of the visible content, defaults to 1
	urlGroup  int  // submatch index of the URL, 0 if none
	guard     byte // skip matches flanked by this byte, 0 if none
}

// Priority order is fixed: earlier pattern types beat later ones
// whenever their candidates intersect, regardless of position.
// Within one type, candidates are taken left to right.
var markdownPatterns = []pattern{
	{typ: TypePre, re: regexp.MustCompile("(?s)```(.+?)```")},
	{typ: TypeCode, re: regexp.MustCompile("`([^`\n]+)`")},
	{typ: TypeSpoiler, re: regexp.MustCompile(`\|\|([^|\n]+)\|\|`)},
	{typ: TypeBoldItalic, re: regexp.MustCompile(`\*\*\*([^*\n]+)\*\*\*`)},
	{typ: TypeBold, re: regexp.MustCompile(`\*([^*\n]+)\*`), guard: '*'},
	{typ: TypeItalic, re: regexp.MustCompile(`_([^_\n]+)_`), guard: '_'},
	{typ: TypeStrikethrough, re: regexp.MustCompile(`~([^~\n]+)~`)},
	{typ: TypeUnderline, re: regexp.MustCompile(`__([^\n]+?)__`)},
	{typ: TypeBlockquote, re: regexp.MustCompile(`(?m)^>[ ]?(.+)$`)},
	{typ: TypeTextLink, re: regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\n]+)\)`), urlGroup: 2},
	{typ: TypeURL, re: regexp.MustCompile(`(https?://[^\s<>()]+)`)},
	{typ: TypeMention, re: regexp.MustCompile(`(@\w+)`)},
	{typ: TypeHashtag, re: regexp.MustCompile(`(#\w+)`)},
}

var htmlPatterns = []pattern{
	{typ: TypePre, re: regexp.MustCompile(`(?s)<pre>(.+?)</pre>`)},
	{typ: TypeCode, re: regexp.MustCompile(`<code>([^<]+)</code>`)},
	{typ: TypeBold, re: regexp.MustCompile(`<b>([^<]+)</b>`)},
	{typ: TypeBold, re: regexp.MustCompile(`<strong>([^<]+)</strong>`)},
	{typ: TypeItalic, re: regexp.MustCompile(`<i>([^<]+)</i>`)},
	{typ: TypeItalic, re: regexp.MustCompile(`<em>([^<]+)</em>`)},
	{typ: TypeStrikethrough, re: regexp.MustCompile(`<s>([^<]+)</s>`)},
	{typ: TypeStrikethrough, re: regexp.MustCompile(`<del>([^<]+)</del>`)},
	{typ: TypeUnderline, re: regexp.MustCompile(`<u>([^<]+)</u>`)},
	{typ: TypeBlockquote, re: regexp.MustCompile(`(?s)<blockquote>(.+?)</blockquote>`)},
	{typ: TypeTextLink, re: regexp.MustCompile(`<a href="([^"]+)">([^<]+)</a>`), textGroup: 2, urlGroup: 1},
	{typ: TypeURL, re: regexp.MustCompile(`(https?://[^\s<>()"]+)`)},
	{typ: TypeMention, re: regexp.MustCompile(`(@\w+)`)},
	{typ: TypeHashtag, re: regexp.MustCompile(`(#\w+)`)},
}

// candidate is one potential entity in the raw text before selection.
type candidate struct {
	start, end           int // full span including markers
	innerStart, innerEnd int // visible content
	prio                 int
	typ                  string
	url                  string
}

// Parse extracts formatting entities from text according to the parse
// mode, returning the cleaned text (markers stripped) and the entity
// list with offsets into the cleaned text. Plain mode returns the text
// untouched with no entities.
func Parse(text, mode string) (string, []Entity, error) {
	var patterns []pattern
	switch mode {
	case "", ModePlain:
		return text, nil, nil
	case ModeMarkdown:
		patterns = markdownPatterns
	case ModeHTML:
		patterns = htmlPatterns
	default:
		return "", nil, ErrUnknownParseMode
	}

	var candidates []candidate
	for prio, p := range patterns {
		tg := p.textGroup
		if tg == 0 {
			tg = 1
		}
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			// A marker flanked by its own marker byte is the inside of a
			// longer span (e.g. the middle of __underline__); skip it.
			if p.guard != 0 {
				if (m[0] > 0 && text[m[0]-1] == p.guard) ||
					(m[1] < len(text) && text[m[1]] == p.guard) {
					continue
				}
			}
			c := candidate{
				start: m[0], end: m[1],
				innerStart: m[2*tg], innerEnd: m[2*tg+1],
				prio: prio, typ: p.typ,
			}
			if p.urlGroup > 0 {
				c.url = text[m[2*p.urlGroup]:m[2*p.urlGroup+1]]
			}
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return text, nil, nil
	}

	// Higher-priority types claim their spans first, left to right
	// within a type; anything intersecting an accepted span is dropped.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].prio != candidates[j].prio {
			return candidates[i].prio < candidates[j].prio
		}
		return candidates[i].start < candidates[j].start
	})

	var accepted []candidate
	for _, c := range candidates {
		ok := true
		for _, a := range accepted {
			if c.start < a.end && a.start < c.end {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}

	// The rebuild below walks the text front to back.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	// Rebuild the text without markers, remapping offsets as we go.
	clean := make([]byte, 0, len(text))
	entities := make([]Entity, 0, len(accepted))
	pos := 0
	for _, c := range accepted {
		clean = append(clean, text[pos:c.start]...)
		e := Entity{
			Type:   c.typ,
			Offset: len(clean),
			Length: c.innerEnd - c.innerStart,
			URL:    c.url,
		}
		clean = append(clean, text[c.innerStart:c.innerEnd]...)
		entities = append(entities, e)
		pos = c.end
	}
	clean = append(clean, text[pos:]...)

	return string(clean), entities, nil
}
