package crawler

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// excludeRules matches root-relative paths against gitignore-syntax patterns.
// Later rules override earlier ones, so "!keep.log" can re-include a file.
type excludeRules struct {
	mu    sync.RWMutex
	rules []excludeRule
}

type excludeRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	// base limits the rule to one subtree (nested .gitignore files).
	base string
}

func newExcludeRules(patterns ...string) *excludeRules {
	x := &excludeRules{}
	for _, p := range patterns {
		x.add(p, "")
	}
	return x
}

// add compiles one pattern line. Blank lines and comments are ignored.
func (x *excludeRules) add(line, base string) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}
	if escapedSpace {
		p = strings.TrimSuffix(p, `\`) + " "
	}

	r := excludeRule{base: filepath.ToSlash(base)}
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		r.anchored = true
		p = strings.TrimLeft(p, "/")
	}
	if strings.Contains(p, "/") {
		r.anchored = true
	}
	if p == "" {
		return
	}
	r.re = regexp.MustCompile("^" + globToRegexp(p) + "$")

	x.mu.Lock()
	x.rules = append(x.rules, r)
	x.mu.Unlock()
}

// addFile reads a .gitignore-style file whose rules apply under base.
func (x *excludeRules) addFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		x.add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// match reports whether rel is excluded.
func (x *excludeRules) match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)

	x.mu.RLock()
	defer x.mu.RUnlock()

	excluded := false
	for _, r := range x.rules {
		if r.matches(rel, isDir) {
			excluded = !r.negate
		}
	}
	return excluded
}

func (r excludeRule) matches(rel string, isDir bool) bool {
	if r.base != "" && r.base != "." {
		rest, ok := strings.CutPrefix(rel, r.base+"/")
		if !ok {
			return false
		}
		rel = rest
	}

	parts := strings.Split(rel, "/")
	for i := range parts {
		last := i == len(parts)-1
		// ancestors are always directories
		if last && r.dirOnly && !isDir {
			return false
		}
		candidate := parts[i]
		if r.anchored {
			candidate = strings.Join(parts[:i+1], "/")
		}
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// globToRegexp translates gitignore glob syntax to a regular expression body.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				switch {
				case i+2 < len(glob) && glob[i+2] == '/':
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				case i+2 == len(glob):
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
