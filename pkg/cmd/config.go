package cmd

import (
	"fmt"

	"github.com/dukex/portalflow/pkg/config"
)

// LoadOrchestration reads the orchestration file and adds the skip list given on the
// command line.
func LoadOrchestration(path, skipList string) (*config.Orchestration, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	extra, err := config.ParseSkipList(skipList)
	if err != nil {
		return nil, fmt.Errorf("invalid skip list: %w", err)
	}

	cfg.Skip = cfg.Skip.Merge(extra)

	return cfg, nil
}
