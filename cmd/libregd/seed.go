package main

import (
	"github.com/rs/zerolog"

	"xdao.co/libreg/defaults"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/endpoint"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
)

// seed applies the configured libraries, owner bindings and default table to
// ep. Anything the journal already holds is left alone; a configured entry
// that disagrees with the journal is logged and skipped.
func seed(ep *endpoint.Endpoint, log zerolog.Logger, libs []directory.Entry, owners []ownership.Binding, defs *defaults.Table) error {
	have := map[msglib.LibraryID]msglib.Capability{}
	for _, e := range ep.Libraries() {
		have[e.ID] = e.Capability
	}
	for _, l := range libs {
		if c, ok := have[l.ID]; ok {
			if c != l.Capability {
				log.Warn().
					Str("library", l.ID.String()).
					Str("configured", l.Capability.String()).
					Str("registered", c.String()).
					Msg("configured capability differs from journal; keeping journal")
			}
			continue
		}
		if _, err := ep.Register(l.ID, l.Capability); err != nil {
			return err
		}
	}

	for _, o := range owners {
		if key, ok := ep.Owner(o.App); ok {
			if key != o.Owner {
				log.Warn().Str("app", string(o.App)).Msg("configured owner differs from journal; keeping journal")
			}
			continue
		}
		if _, err := ep.Bind(o.App, o.Owner); err != nil {
			return err
		}
	}

	if defs == nil {
		return nil
	}
	cur := ep.Defaults()
	if defs.Version() <= cur.Version() {
		if defs.Version() < cur.Version() {
			log.Warn().Uint64("configured", defs.Version()).Uint64("active", cur.Version()).Msg("configured defaults are older than active")
		}
		return nil
	}
	return ep.ReplaceDefaults(defs)
}
