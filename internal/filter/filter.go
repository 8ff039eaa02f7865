// Package filter selects which remote entries a sync run touches.
// Patterns use doublestar globs matched against paths relative to the
// sync root.
package filter

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is a single include or exclude pattern.
type Rule struct {
	pattern string
	dirOnly bool // pattern ended with "/"
	include bool
}

// Chain holds an ordered list of rules plus size bounds. The first
// matching rule wins; an empty chain includes everything.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given glob pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude adds an include rule for the given glob pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	r := Rule{include: include}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	r.pattern = strings.TrimPrefix(pattern, "/")
	if !doublestar.ValidatePattern(r.pattern) {
		return fmt.Errorf("invalid pattern %q", pattern)
	}
	c.rules = append(c.rules, r)
	return nil
}

// SetMinSize sets the minimum file size bound.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize sets the maximum file size bound.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Match reports whether the entry at relPath should be included.
// Size bounds apply only to files.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	relPath = strings.TrimPrefix(relPath, "/")
	for _, r := range c.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.matches(relPath) {
			return r.include
		}
	}
	return true
}

func (r Rule) matches(relPath string) bool {
	// Patterns without a separator match any path component.
	target := relPath
	if !strings.Contains(r.pattern, "/") {
		target = path.Base(relPath)
	}
	ok, err := doublestar.Match(r.pattern, target)
	return err == nil && ok
}
