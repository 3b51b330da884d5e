package kernel

import (
	"sort"
	"strings"
)

// Completer is the name-completion helper the kernel consumes for
// complete_request, per SPEC_FULL §2 ("Completer") and §4.2.4.
type Completer interface {
	// Complete returns the candidate completions of text given the full
	// line it appears on (line is provided for completers that care about
	// surrounding context; NamespaceCompleter ignores it).
	Complete(line, text string) []string
}

// NamespaceCompleter completes text against the live names in a namespace
// (Namespace.Names()), the simplest useful completer and the one wired into
// Kernel by default: it needs no parser, just a prefix match against
// whatever names currently exist in user_ns.
type NamespaceCompleter struct {
	ns *Namespace
}

// NewNamespaceCompleter constructs a completer bound to ns.
func NewNamespaceCompleter(ns *Namespace) *NamespaceCompleter {
	return &NamespaceCompleter{ns: ns}
}

// Complete returns every name in the namespace that has text as a prefix,
// sorted for deterministic output.
func (c *NamespaceCompleter) Complete(line, text string) []string {
	var matches []string
	for _, name := range c.ns.Names() {
		if strings.HasPrefix(name, text) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}
