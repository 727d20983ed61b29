package local

import "github.com/gobeaver/ingestkit"

func init() {
	ingestkit.RegisterTransport("local", func(cfg *ingestkit.Config) (ingestkit.Transport, error) {
		return New(cfg.LocalBasePath)
	})
}
