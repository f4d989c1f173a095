package auth

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Permission scopes, from narrowest to widest.
const (
	ScopeOwn      = "own"
	ScopeOwnGroup = "own_group"
	ScopeAll      = "all"
)

// Actions a permission code may carry. "manage" implies every other action
// at the same scope.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
)

// PermissionCode is a parsed `resource.action[.scope]` string. An empty
// Scope means the code was written unscoped; see Engine for how unscoped
// grants behave at the object level.
type PermissionCode struct {
	Resource string
	Action   string
	Scope    string
}

// String reassembles the canonical code string.
func (p PermissionCode) String() string {
	if p.Scope == "" {
		return p.Resource + "." + p.Action
	}
	return p.Resource + "." + p.Action + "." + p.Scope
}

// Base returns the `resource.action` prefix without the scope.
func (p PermissionCode) Base() string {
	return p.Resource + "." + p.Action
}

func validAction(a string) bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionManage:
		return true
	}
	return false
}

func validScope(s string) bool {
	switch s {
	case "", ScopeOwn, ScopeOwnGroup, ScopeAll:
		return true
	}
	return false
}

// ParsePermission validates the `<resource>.<action>[.<scope>]` grammar.
func ParsePermission(code string) (PermissionCode, error) {
	code = strings.TrimSpace(code)
	parts := strings.Split(code, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return PermissionCode{}, fmt.Errorf("%w: malformed code %q", ErrInvalidInput, code)
	}
	p := PermissionCode{Resource: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		p.Scope = parts[2]
	}
	if p.Resource == "" {
		return PermissionCode{}, fmt.Errorf("%w: empty resource in %q", ErrInvalidInput, code)
	}
	if !validAction(p.Action) {
		return PermissionCode{}, fmt.Errorf("%w: unknown action in %q", ErrInvalidInput, code)
	}
	if !validScope(p.Scope) {
		return PermissionCode{}, fmt.Errorf("%w: unknown scope in %q", ErrInvalidInput, code)
	}
	return p, nil
}

var requestActions = map[string]string{
	"GET":    ActionView,
	"HEAD":   ActionView,
	"POST":   ActionCreate,
	"PUT":    ActionUpdate,
	"PATCH":  ActionUpdate,
	"DELETE": ActionDelete,
}

// RequiredPermission derives the `resource.action` base a CRUD endpoint
// should demand from its resource name and HTTP method.
func RequiredPermission(resource, method string) string {
	resource = strings.TrimSpace(strings.ToLower(resource))
	if resource == "" {
		return ""
	}
	action, ok := requestActions[strings.ToUpper(method)]
	if !ok {
		action = ActionView
	}
	return resource + "." + action
}

// PermissionMeta is one catalog entry.
type PermissionMeta struct {
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	Category  string    `json:"category"`
	MinLevel  int       `json:"min_level"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Catalog is the registry of known permission codes. It is seeded at
// startup and read-only on the authorization path; role and assignment
// writes validate their permission lists against it.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]PermissionMeta
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]PermissionMeta)}
}

// Register inserts a catalog entry. Registering the same code with the same
// metadata is a no-op; same code with different metadata fails with
// ErrDuplicateCode.
func (c *Catalog) Register(code, label, category string, minLevel int) error {
	if _, err := ParsePermission(code); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[code]; ok {
		if existing.Label != label || existing.Category != category || existing.MinLevel != minLevel {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, code)
		}
		return nil
	}
	c.entries[code] = PermissionMeta{Code: code, Label: label, Category: category, MinLevel: minLevel}
	return nil
}

// IsValid reports whether the code exists in the catalog.
func (c *Catalog) IsValid(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[code]
	return ok
}

// Get returns the metadata for a code.
func (c *Catalog) Get(code string) (PermissionMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.entries[code]
	return meta, ok
}

// List returns all entries ordered by code.
func (c *Catalog) List() []PermissionMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PermissionMeta, 0, len(c.entries))
	for _, meta := range c.entries {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ValidateCodes rejects any code not present in the catalog. Unvalidated
// codes are never persisted.
func (c *Catalog) ValidateCodes(codes []string) error {
	for _, code := range codes {
		if !c.IsValid(code) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, code)
		}
	}
	return nil
}

// dedupeCodes trims, drops empties and collapses duplicates while keeping
// first-seen order.
func dedupeCodes(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// unionCodes merges two permission lists into a sorted, de-duplicated set.
func unionCodes(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, code := range list {
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}
