package ingest

import (
	"strings"

	"careerpilot/ingest-service/internal/model"
)

// Bullet extraction walks an ordered chain of source fields and takes the
// first one that yields anything: structured highlight array, alternate
// structured array, then the raw free-text field split on newline/bullet
// delimiters. Each posting yields two bullet lists, possibly empty.

type skillSource struct {
	extract  func(p *model.Posting) []string
	required bool
}

var skillSources = []skillSource{
	{extract: func(p *model.Posting) []string { return cleanLines(p.HighlightQualifications) }},
	{extract: func(p *model.Posting) []string { return cleanLines(p.RequiredSkills) }, required: true},
	{extract: func(p *model.Posting) []string { return SplitFreeText(p.QualificationsRaw) }},
}

var responsibilitySources = []func(p *model.Posting) []string{
	func(p *model.Posting) []string { return cleanLines(p.HighlightResponsibilities) },
	func(p *model.Posting) []string { return cleanLines(p.Duties) },
	func(p *model.Posting) []string { return SplitFreeText(p.ResponsibilitiesRaw) },
}

// ExtractBullets populates p.Skills and p.Responsibilities in place.
func ExtractBullets(p *model.Posting) {
	p.Skills = nil
	for _, src := range skillSources {
		if lines := src.extract(p); len(lines) > 0 {
			p.Skills = toBullets(lines, src.required)
			break
		}
	}

	p.Responsibilities = nil
	for _, src := range responsibilitySources {
		if lines := src(p); len(lines) > 0 {
			p.Responsibilities = toBullets(lines, false)
			break
		}
	}
}

// SplitFreeText splits a delimited blob into bullet lines. Newlines and the
// common bullet glyphs all act as separators; leading list markers are
// stripped and fragments too short to be a real bullet are dropped.
func SplitFreeText(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r' || r == '•' || r == '●' || r == '‣'
	})

	var out []string
	for _, part := range parts {
		line := strings.TrimSpace(part)
		line = strings.TrimLeft(line, "-*– \t")
		line = strings.TrimSpace(line)
		if len(line) < 3 {
			continue
		}
		out = append(out, line)
	}
	return out
}

func cleanLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func toBullets(lines []string, required bool) []model.Bullet {
	bullets := make([]model.Bullet, 0, len(lines))
	for _, l := range lines {
		bullets = append(bullets, model.Bullet{Text: l, Required: required})
	}
	return bullets
}
