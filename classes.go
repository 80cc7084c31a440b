package yolomark

import (
	"errors"
)

// ErrUnknownClass is returned when selecting a class that is not registered.
var ErrUnknownClass = errors.New("unknown class")

// Class is a registered class name with the id it was given at creation.
type Class struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Registry is the ordered set of class names and the active class.
//
// A class has two integer identities: its position in the list (IndexOf), which shifts when an
// earlier class is removed, and its ID, which never changes and is never reused.
type Registry struct {
	classes []Class
	nextID  int
	active  string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends name. Empty and duplicate names are ignored and false is returned.
func (r *Registry) Add(name string) bool {
	if name == "" {
		return false
	}
	if _, ok := r.IndexOf(name); ok {
		return false
	}
	r.classes = append(r.classes, Class{ID: r.nextID, Name: name})
	r.nextID++
	return true
}

// Remove deletes name and clears the active class if it was name. It returns false if name is
// not registered.
func (r *Registry) Remove(name string) bool {
	i, ok := r.IndexOf(name)
	if !ok {
		return false
	}
	r.classes = append(r.classes[:i], r.classes[i+1:]...)
	if r.active == name {
		r.active = ""
	}
	return true
}

// Select makes name the active class.
func (r *Registry) Select(name string) error {
	if _, ok := r.IndexOf(name); !ok {
		return ErrUnknownClass
	}
	r.active = name
	return nil
}

// Active returns the active class, if any.
func (r *Registry) Active() (string, bool) {
	return r.active, r.active != ""
}

// IndexOf returns the position of name in the list.
func (r *Registry) IndexOf(name string) (int, bool) {
	for i, c := range r.classes {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// ID returns the immutable id of name.
func (r *Registry) ID(name string) (int, bool) {
	if i, ok := r.IndexOf(name); ok {
		return r.classes[i].ID, true
	}
	return -1, false
}

// Names returns the class names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.classes))
	for i, c := range r.classes {
		names[i] = c.Name
	}
	return names
}

// Classes returns a copy of the registered classes in order.
func (r *Registry) Classes() []Class {
	return append([]Class(nil), r.classes...)
}

// Len is the number of registered classes.
func (r *Registry) Len() int {
	return len(r.classes)
}

// Restore replaces the registry contents with classes, e.g. from a classes.txt file. Entries
// with empty names, negative ids, or a name or id seen before are dropped. New ids continue
// after the largest restored id. The active class is cleared.
func (r *Registry) Restore(classes []Class) {
	r.classes = r.classes[:0]
	r.nextID = 0
	r.active = ""
	seenIDs := make(map[int]bool, len(classes))
	for _, c := range classes {
		if c.Name == "" || c.ID < 0 || seenIDs[c.ID] {
			continue
		}
		if _, ok := r.IndexOf(c.Name); ok {
			continue
		}
		seenIDs[c.ID] = true
		r.classes = append(r.classes, c)
		if c.ID >= r.nextID {
			r.nextID = c.ID + 1
		}
	}
}
