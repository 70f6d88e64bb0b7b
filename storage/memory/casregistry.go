package memory

import (
	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "memory",
		Description: "In-process store; contents are lost on exit",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(map[string]string) (storage.Store, func() error, error) {
			return New(), nil, nil
		},
	})
}
