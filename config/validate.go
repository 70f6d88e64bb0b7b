package config

import (
	"fmt"
	"strings"

	"xdao.co/libreg/keys"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/storage"
)

func (c Config) Validate() error {
	if strings.TrimSpace(c.GRPCAddr) == "" {
		return fmt.Errorf("grpc_addr is required")
	}
	if strings.TrimSpace(c.Journal.Backend) == "" {
		return fmt.Errorf("journal.backend is required")
	}
	if c.Journal.Ref != "" {
		if err := storage.CheckRefName(c.Journal.Ref); err != nil {
			return fmt.Errorf("journal.ref: %w", err)
		}
	}
	mirrors := map[string]bool{}
	for i, m := range c.Journal.Mirrors {
		if strings.TrimSpace(m.Backend) == "" {
			return fmt.Errorf("journal.mirrors[%d]: backend is required", i)
		}
		name := m.label(i)
		if mirrors[name] {
			return fmt.Errorf("journal.mirrors[%d]: duplicate name %q", i, name)
		}
		mirrors[name] = true
	}

	if c.AdminKey != "" {
		if _, err := keys.ParseOwnerKey(c.AdminKey); err != nil {
			return fmt.Errorf("admin_key: %w", err)
		}
	}

	libs := map[string]msglib.Capability{}
	for i, l := range c.Libraries {
		addr := strings.TrimSpace(l.Address)
		if addr == "" {
			return fmt.Errorf("libraries[%d]: address is required", i)
		}
		if _, dup := libs[addr]; dup {
			return fmt.Errorf("libraries[%d]: duplicate address %q", i, addr)
		}
		capability, err := msglib.ParseCapability(l.Capability)
		if err != nil {
			return fmt.Errorf("libraries[%d]: %w", i, err)
		}
		libs[addr] = capability
	}

	apps := map[msglib.AppID]bool{}
	for i, o := range c.Owners {
		app := msglib.AppID(strings.TrimSpace(o.App))
		if err := app.Validate(); err != nil {
			return fmt.Errorf("owners[%d]: %w", i, err)
		}
		if app == msglib.AdminApp {
			return fmt.Errorf("owners[%d]: %s is reserved", i, app)
		}
		if apps[app] {
			return fmt.Errorf("owners[%d]: duplicate app %q", i, app)
		}
		apps[app] = true
		if _, err := keys.ParseOwnerKey(o.Key); err != nil {
			return fmt.Errorf("owners[%d]: %w", i, err)
		}
	}

	return c.Defaults.validate(libs)
}

func (d DefaultsConfig) validate(libs map[string]msglib.Capability) error {
	check := func(addr string, role msglib.Role, where string) error {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return nil
		}
		capability, ok := libs[addr]
		if !ok {
			return fmt.Errorf("defaults%s: %s library %q is not in [[libraries]]", where, role, addr)
		}
		if !capability.Allows(role) {
			return fmt.Errorf("defaults%s: %s library %q is %s", where, role, addr, capability)
		}
		return nil
	}

	set := d.Send != "" || d.Receive != "" || len(d.Paths) > 0
	if set && d.Version == 0 {
		return fmt.Errorf("defaults.version must be at least 1")
	}
	if err := check(d.Send, msglib.RoleSend, ""); err != nil {
		return err
	}
	if err := check(d.Receive, msglib.RoleReceive, ""); err != nil {
		return err
	}
	seen := map[uint32]bool{}
	for i, p := range d.Paths {
		if seen[p.EID] {
			return fmt.Errorf("defaults.path[%d]: duplicate eid %d", i, p.EID)
		}
		seen[p.EID] = true
		where := fmt.Sprintf(".path[%d]", i)
		if err := check(p.Send, msglib.RoleSend, where); err != nil {
			return err
		}
		if err := check(p.Receive, msglib.RoleReceive, where); err != nil {
			return err
		}
	}
	return nil
}

func (m MirrorConfig) label(i int) string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("%s-%d", m.Backend, i)
}
