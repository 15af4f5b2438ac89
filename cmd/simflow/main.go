// simflow stages and submits PRE/RUN/POST simulation chains to the cluster
// batch system.
//
// Build with: go build -ldflags "-X github.com/aerox/simflow/internal/version.Version=v1.0.0" ./cmd/simflow
package main

import (
	"os"

	"github.com/aerox/simflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		cli.LogFailure(err)
		os.Exit(1)
	}
}
