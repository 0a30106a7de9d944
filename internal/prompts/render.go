package prompts

import (
	"sort"
	"strings"
)

// Render substitutes {name} placeholders in tpl. Variables the template never
// mentions are appended as "Name: value" blocks so no content is silently dropped.
func Render(tpl string, vars map[string]string) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, 2*len(vars))
	var missing []string
	for _, name := range names {
		token := "{" + name + "}"
		if !strings.Contains(tpl, token) {
			missing = append(missing, name)
			continue
		}
		pairs = append(pairs, token, vars[name])
	}
	out := strings.NewReplacer(pairs...).Replace(tpl)
	for _, name := range missing {
		if vars[name] == "" {
			continue
		}
		out += "\n\n" + strings.ToUpper(name[:1]) + name[1:] + ": " + vars[name]
	}
	return out
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
