package toolclient

import "encoding/json"

// ToolDescriptor describes a tool discovered on the server.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Registry is the immutable set of tools discovered for one session.
type Registry struct {
	order []ToolDescriptor
	index map[string]int
}

// NewRegistry builds a registry from descriptors, keeping their order. Later
// duplicates of a name are ignored.
func NewRegistry(descriptors []ToolDescriptor) *Registry {
	r := &Registry{
		order: make([]ToolDescriptor, 0, len(descriptors)),
		index: make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if _, exists := r.index[d.Name]; exists {
			continue
		}
		r.index[d.Name] = len(r.order)
		r.order = append(r.order, d)
	}
	return r
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (ToolDescriptor, bool) {
	if r == nil {
		return ToolDescriptor{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return r.order[i], true
}

// Names returns tool names in discovery order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.order))
	for i, d := range r.order {
		names[i] = d.Name
	}
	return names
}

// Descriptors returns a copy of the descriptors in discovery order.
func (r *Registry) Descriptors() []ToolDescriptor {
	if r == nil {
		return nil
	}
	out := make([]ToolDescriptor, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
