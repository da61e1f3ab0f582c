package formula

import "strings"

// Prefixes Excel writes into the file format for functions newer than the
// original OOXML function list. They never appear in the formula bar.
var futurePrefixes = []string{"_xlfn._xlws.", "_xlfn.", "_xlws.", "_xlpm."}

// Normalize returns f the way a user sees it in the formula bar: trimmed,
// with a leading "=", and with future-function prefixes removed. String
// literals are left untouched. An empty input stays empty.
func Normalize(f string) string {
	f = strings.TrimSpace(f)
	if f == "" {
		return ""
	}
	if !strings.HasPrefix(f, "=") {
		f = "=" + f
	}
	return stripPrefixes(f)
}

func stripPrefixes(f string) string {
	var b strings.Builder
	b.Grow(len(f))
	inString := false
	for i := 0; i < len(f); {
		c := f[i]
		if inString {
			b.WriteByte(c)
			if c == '"' {
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			i++
			continue
		}
		if c == '_' && (i == 0 || !isNameByte(f[i-1])) {
			if n := prefixLen(f[i:]); n > 0 {
				i += n
				continue
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// prefixLen returns the length of the run of future-function prefixes at the
// start of s.
func prefixLen(s string) int {
	total := 0
	for {
		matched := false
		for _, p := range futurePrefixes {
			if len(s)-total >= len(p) && strings.EqualFold(s[total:total+len(p)], p) {
				total += len(p)
				matched = true
				break
			}
		}
		if !matched {
			return total
		}
	}
}
