package render

import (
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
)

// ColorsEnabled returns whether terminal colors should be used.
// It returns false if the NO_COLOR environment variable is set (any value)
// or if TERM is set to "dumb".
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

var (
	wikiHeading = regexp.MustCompile(`^h([1-6])\.\s+`)
	wikiBlock   = regexp.MustCompile(`^\{(code|noformat)(:[^}]*)?\}`)
	wikiBullet  = regexp.MustCompile(`^(\*+|#+)\s+`)
)

// WikiToMarkdown converts the block-level JIRA wiki markup found in issue
// descriptions and comments (headings, code and noformat blocks, bullet and
// numbered lists) into markdown. Inline markup is left as is.
func WikiToMarkdown(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	inBlock := false
	for i, line := range lines {
		if m := wikiBlock.FindStringSubmatch(line); m != nil {
			if inBlock {
				lines[i] = "```"
			} else {
				lang := strings.TrimPrefix(m[2], ":")
				if strings.Contains(lang, "=") {
					lang = ""
				}
				lines[i] = "```" + lang
			}
			inBlock = !inBlock
			continue
		}
		if inBlock {
			continue
		}
		if m := wikiHeading.FindStringSubmatch(line); m != nil {
			lines[i] = strings.Repeat("#", int(m[1][0]-'0')) + " " + line[len(m[0]):]
			continue
		}
		if m := wikiBullet.FindStringSubmatch(line); m != nil {
			depth := len(m[1])
			marker := "-"
			if m[1][0] == '#' {
				marker = "1."
			}
			lines[i] = strings.Repeat("  ", depth-1) + marker + " " + line[len(m[0]):]
		}
	}
	return strings.Join(lines, "\n")
}

// RenderMarkdown renders wiki or markdown text for terminal display.
// When colors are disabled, it returns the content unmodified.
func RenderMarkdown(content string) (string, error) {
	if content == "" {
		return "", nil
	}

	if !ColorsEnabled() {
		return content, nil
	}

	rendered, err := glamour.RenderWithEnvironmentConfig(WikiToMarkdown(content))
	if err != nil {
		return content, err
	}

	return strings.TrimSpace(rendered), nil
}
