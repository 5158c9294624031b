package discovery

import "mcpchat/internal/domain"

// Partition splits tools into an eager set sent to the model immediately
// and a deferred-by-server set withheld until discovered. A tool is
// deferred when discovery is enabled and either DeferAll is set or its
// owning server is marked DeferLoading. Tools from servers absent from the
// configuration stay eager. With discovery disabled everything is eager.
func Partition(tools []domain.Tool, servers []domain.ServerSpec, cfg domain.DiscoveryConfig) (eager []domain.Tool, deferred map[string][]domain.Tool) {
	if !cfg.Enabled {
		return tools, nil
	}

	deferLoading := make(map[string]bool, len(servers))
	for _, s := range servers {
		deferLoading[s.Name] = s.DeferLoading
	}

	deferred = make(map[string][]domain.Tool)
	for _, t := range tools {
		shouldDefer := cfg.DeferAll
		if !shouldDefer {
			flag, known := deferLoading[t.Server]
			shouldDefer = known && flag
		}
		if shouldDefer {
			deferred[t.Server] = append(deferred[t.Server], t)
		} else {
			eager = append(eager, t)
		}
	}
	if len(deferred) == 0 {
		deferred = nil
	}
	return eager, deferred
}
