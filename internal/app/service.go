package app

import "slices"

// ServiceOf returns c's behavior as a Service, if it is one.
func ServiceOf(c *Component) (Service, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.behavior.(Service)
	return s, ok
}

func (a *App) registerService(c *Component) {
	if _, ok := ServiceOf(c); ok {
		a.services = append(a.services, c.id)
	}
}

func (a *App) unregisterService(c *Component) {
	a.services = slices.DeleteFunc(a.services, func(id ID) bool { return id == c.id })
}

// Services returns the service components in registration order.
func (a *App) Services() []*Component {
	out := make([]*Component, 0, len(a.services))
	for _, id := range a.services {
		if c := a.Lookup(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// LookupService returns the first service whose type is or inherits
// typeName.
func (a *App) LookupService(typeName string) *Component {
	for _, id := range a.services {
		if c := a.Lookup(id); c != nil && c.typ.IsNamed(typeName) {
			return c
		}
	}
	return nil
}
