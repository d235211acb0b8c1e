package provider

import (
	"fmt"
	"strings"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/port"
)

// Resolver picks a connector by (locale, provider name). A connector
// registered for a specific locale wins over the locale-independent one.
type Resolver struct {
	enabled    map[string]bool
	connectors map[string]port.Provider
}

// NewResolver creates a resolver that only allows the enabled providers.
// An empty list enables every registered connector.
func NewResolver(enabled []string) *Resolver {
	r := &Resolver{
		enabled:    make(map[string]bool, len(enabled)),
		connectors: make(map[string]port.Provider),
	}
	for _, name := range enabled {
		if name = normalizeName(name); name != "" {
			r.enabled[name] = true
		}
	}
	return r
}

// Register adds p for locale ("" for every locale).
func (r *Resolver) Register(locale string, p port.Provider) {
	r.connectors[key(locale, p.Name())] = p
}

// Enabled reports whether name may be used in this deployment.
// Names compare case-insensitively.
func (r *Resolver) Enabled(name string) bool {
	name = normalizeName(name)
	if len(r.enabled) == 0 {
		return r.hasConnector(name)
	}
	return r.enabled[name]
}

// Resolve returns the connector for (locale, name).
func (r *Resolver) Resolve(locale, name string) (port.Provider, error) {
	name = normalizeName(name)
	if !r.Enabled(name) {
		return nil, &domain.ErrProviderNotAllowed{Provider: name}
	}
	if p, ok := r.connectors[key(locale, name)]; ok {
		return p, nil
	}
	if p, ok := r.connectors[key("", name)]; ok {
		return p, nil
	}
	return nil, &domain.ErrNotFound{Resource: "provider connector", ID: fmt.Sprintf("%s/%s", locale, name)}
}

func (r *Resolver) hasConnector(name string) bool {
	for _, p := range r.connectors {
		if normalizeName(p.Name()) == name {
			return true
		}
	}
	return false
}

func key(locale, name string) string {
	return strings.ToLower(locale) + "|" + normalizeName(name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
