// Package restrictions implements the email restriction list that blocks
// accounts from being added as add-on authors.
package restrictions

import "strings"

// List holds restriction rules. Matching is case-insensitive and ignores
// surrounding whitespace. A rule is either a full email address or a domain
// (with or without a leading "@") that matches any address at that domain.
type List struct {
	emails  map[string]struct{}
	domains map[string]struct{}
}

// New builds a restriction list from configured rules.
func New(rules []string) *List {
	l := &List{
		emails:  make(map[string]struct{}),
		domains: make(map[string]struct{}),
	}
	for _, rule := range rules {
		rule = strings.ToLower(strings.TrimSpace(rule))
		if rule == "" {
			continue
		}
		switch {
		case strings.HasPrefix(rule, "@"):
			l.domains[rule[1:]] = struct{}{}
		case strings.Contains(rule, "@"):
			l.emails[rule] = struct{}{}
		default:
			// Bare domain rule
			l.domains[rule] = struct{}{}
		}
	}
	return l
}

// IsRestricted reports whether the email matches a restriction rule.
// An empty email never matches.
func (l *List) IsRestricted(email string) bool {
	if l == nil {
		return false
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if _, ok := l.emails[email]; ok {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at == -1 || at == len(email)-1 {
		return false
	}
	_, ok := l.domains[email[at+1:]]
	return ok
}

// Rules returns the number of configured rules.
func (l *List) Rules() int {
	if l == nil {
		return 0
	}
	return len(l.emails) + len(l.domains)
}
