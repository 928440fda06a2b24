package assembler

import (
	"regexp"
	"strings"

	"kbchat/internal/rutext"
)

var headerRe = regexp.MustCompile(`(?m)^(#{1,3})[ \t]+(.+)$`)

type section struct {
	header string
	level  int
	body   string
	raw    string
}

// splitSections splits markdown on #..### headings. Text without
// headings yields a single headerless section.
func splitSections(md string) []section {
	locs := headerRe.FindAllStringSubmatchIndex(md, -1)
	if len(locs) == 0 {
		if s := strings.TrimSpace(md); s != "" {
			return []section{{body: s, raw: s}}
		}
		return nil
	}
	sections := make([]section, 0, len(locs))
	for i, m := range locs {
		end := len(md)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections = append(sections, section{
			header: strings.TrimSpace(md[m[4]:m[5]]),
			level:  m[3] - m[2],
			body:   strings.TrimSpace(md[m[1]:end]),
			raw:    strings.TrimSpace(md[m[0]:end]),
		})
	}
	return sections
}

// BestSection returns the heading-delimited subsection of md that best
// matches the query, trimmed to maxChars, or md unchanged when there
// are no headings or no section shares at least two terms with the
// query. Headings weigh more than body text.
func BestSection(md, query string, maxChars int) string {
	sections := splitSections(md)
	if len(sections) == 0 || (len(sections) == 1 && sections[0].header == "") {
		return md
	}
	q := rutext.ExpandQuery(rutext.TokenSet(query))

	bestIdx := -1
	bestScore := -1
	for i, sec := range sections {
		tokens := rutext.TokenSet(sec.header + " " + sec.body)
		score := rutext.OverlapCount(q, tokens)
		if sec.header != "" && rutext.OverlapCount(q, rutext.TokenSet(sec.header)) > 0 {
			score += 2
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore < 2 || bestIdx < 0 {
		return md
	}
	return SafeTrim(sections[bestIdx].raw, maxChars)
}
