package settings

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
)

// Group is a view on all keys below a root, e.g. "app/plugin_repositories/official".
type Group struct {
	store Store
	root  string
	base  string
}

// NewGroup returns the group of store below root.
func NewGroup(store Store, root string) (Group, error) {
	root = strings.Trim(root, Delimiter)
	if root == "" {
		return Group{}, errutils.Wrap(errutils.ErrInvalidValue, "group root must not be empty")
	}
	return Group{store: store, root: root, base: root + Delimiter}, nil
}

// Root returns the full key prefix of the group.
func (g Group) Root() string { return g.root }

// ID returns the last segment of the root.
func (g Group) ID() string {
	if i := strings.LastIndex(g.root, Delimiter); i >= 0 {
		return g.root[i+1:]
	}
	return g.root
}

// Store returns the underlying store.
func (g Group) Store() Store { return g.store }

func (g Group) Get(key string) (string, bool) { return g.store.Get(g.base + key) }

// GetDefault returns the value of key or def when it is not set.
func (g Group) GetDefault(key, def string) string { return GetDefault(g.store, g.base+key, def) }

func (g Group) Set(key, value string) error { return g.store.Set(g.base+key, value) }

// GetBool parses key as a boolean, returning def when it is not set.
func (g Group) GetBool(key string, def bool) (bool, error) {
	v, ok := g.Get(key)
	if !ok {
		return def, nil
	}
	b, err := model.ParseBool(v)
	if err != nil {
		return false, errutils.Wrapf(err, "setting %s%s", g.base, key)
	}
	return b, nil
}

// SetBool stores b in the given style.
func (g Group) SetBool(key string, b bool, style model.BoolStyle) error {
	return g.Set(key, model.FormatBool(b, style))
}

// Keys returns the keys of the group relative to its root.
func (g Group) Keys() []string {
	var out []string
	for _, k := range g.store.Keys() {
		if strings.HasPrefix(k, g.base) {
			out = append(out, k[len(g.base):])
		}
	}
	return out
}

// KeysRoot returns the distinct first segments of the group's keys.
func (g Group) KeysRoot() []string {
	return firstSegments(g.store.Keys(), g.base)
}

// Group returns the sub group below sub.
func (g Group) Group(sub string) (Group, error) {
	return NewGroup(g.store, g.base+sub)
}

// Delete removes every key of the group.
func (g Group) Delete() error {
	for _, k := range g.Keys() {
		if err := g.store.Delete(g.base + k); err != nil {
			return errutils.Wrapf(err, "failed to delete %s%s", g.base, k)
		}
	}
	return nil
}

func (g Group) String() string { return fmt.Sprintf("<settings group %s>", g.root) }
