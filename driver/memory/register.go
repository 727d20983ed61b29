package memory

import "github.com/gobeaver/ingestkit"

func init() {
	ingestkit.RegisterTransport("memory", func(cfg *ingestkit.Config) (ingestkit.Transport, error) {
		return New(), nil
	})
}
