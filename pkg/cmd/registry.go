package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateCommand is returned when a name or alias token is already taken.
var ErrDuplicateCommand = errors.New("cmd: duplicate command token")

// Registry stores commands by name and alias token. It does not perform
// dispatch; each adapter looks up commands and invokes them with its own context.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	tokens   map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		tokens:   make(map[string]Command),
	}
}

// Register adds a command. No two commands may share a name or alias token.
func (r *Registry) Register(c Command) error {
	d := Describe(c)
	tokens := append([]string{d.Name}, d.Aliases...)

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			return fmt.Errorf("cmd: empty token on command %q", d.Name)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: %q repeated on command %q", ErrDuplicateCommand, t, d.Name)
		}
		if prev, ok := r.tokens[t]; ok {
			return fmt.Errorf("%w: %q already used by %q", ErrDuplicateCommand, t, prev.Name())
		}
		seen[t] = struct{}{}
	}

	r.commands[d.Name] = c
	for t := range seen {
		r.tokens[t] = c
	}
	return nil
}

// MustRegister is Register that panics on error. Intended for startup wiring.
func (r *Registry) MustRegister(cs ...Command) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Lookup finds a command by its name or any alias token.
func (r *Registry) Lookup(token string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.tokens[token]
	return c, ok
}

// GetAll returns all registered commands, sorted by name.
func (r *Registry) GetAll() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}
