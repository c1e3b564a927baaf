package reconcile

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreList drops paths matching gitignore-style patterns before they
// reach the conflict policy. A nil list ignores nothing.
type ignoreList struct {
	matcher *gitignore.GitIgnore
}

func newIgnoreList(patterns []string) *ignoreList {
	if len(patterns) == 0 {
		return nil
	}
	return &ignoreList{matcher: gitignore.CompileIgnoreLines(patterns...)}
}

func (l *ignoreList) ShouldIgnore(path string) bool {
	if l == nil {
		return false
	}
	return l.matcher.MatchesPath(path)
}
