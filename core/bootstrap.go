package core

import (
	"context"
	"fmt"
	"sort"
)

// Genesis lists the role grants and pause flags applied when the daemon
// starts. Applying the same genesis twice is a no-op apart from the pause
// flags, which are forced to the configured value.
type Genesis struct {
	Roles  map[string][][20]byte
	Paused map[string]bool
}

// Bootstrap applies g as a single atomic call.
func (e *Executor) Bootstrap(ctx context.Context, g Genesis) error {
	roles := make([]string, 0, len(g.Roles))
	for role := range g.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	modules := make([]string, 0, len(g.Paused))
	for module := range g.Paused {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	_, err := e.Execute(ctx, "bootstrap", func(c *Context) error {
		for _, role := range roles {
			for _, account := range g.Roles[role] {
				if err := c.Access.Bootstrap(role, account); err != nil {
					return fmt.Errorf("bootstrap role %s: %w", role, err)
				}
			}
		}
		for _, module := range modules {
			if err := c.Pauses.Bootstrap(module, g.Paused[module]); err != nil {
				return fmt.Errorf("bootstrap pause %s: %w", module, err)
			}
		}
		return nil
	})
	return err
}
