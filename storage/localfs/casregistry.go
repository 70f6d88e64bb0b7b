package localfs

import (
	"fmt"

	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem store (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: map[string]string{
			"dir": "store directory, created if missing",
		},
		Open: func(opts map[string]string) (storage.Store, func() error, error) {
			dir := opts["dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing option dir")
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
