// Package toolset restricts a catalog snapshot to the tools a named
// toolset allows.
package toolset

import (
	"fmt"
	"sort"
	"strings"

	"mcpchat/internal/domain"
)

// Validate checks that a toolset references only configured servers and,
// for include and exclude lists, tools that actually exist on those
// servers. All problems are collected and reported together.
func Validate(spec domain.ToolsetSpec, tools []domain.Tool, serverNames []string) error {
	known := make(map[string]struct{}, len(serverNames))
	for _, name := range serverNames {
		known[name] = struct{}{}
	}

	byServer := make(map[string]map[string]struct{})
	for _, t := range tools {
		if byServer[t.Server] == nil {
			byServer[t.Server] = make(map[string]struct{})
		}
		byServer[t.Server][t.Name] = struct{}{}
	}

	var errs []string
	for _, server := range sortedServers(spec) {
		if _, ok := known[server]; !ok {
			errs = append(errs, fmt.Sprintf("server %q not found in configuration", server))
			continue
		}
		sel := spec.Servers[server]
		available := byServer[server]
		for _, name := range sel.Include {
			if _, ok := available[name]; !ok {
				errs = append(errs, fmt.Sprintf("tool %q not found in server %q, available: %s",
					name, server, availableList(available)))
			}
		}
		for _, name := range sel.Exclude {
			if _, ok := available[name]; !ok {
				errs = append(errs, fmt.Sprintf("tool %q not found in server %q (listed in exclude), available: %s",
					name, server, availableList(available)))
			}
		}
	}

	if len(errs) > 0 {
		return domain.E(domain.CodeInvalidArgument, "toolset.Validate",
			fmt.Sprintf("toolset %q: %s", spec.Name, strings.Join(errs, "; ")), nil)
	}
	return nil
}

// Filter reduces tools to those the toolset allows. Servers the toolset
// does not mention contribute nothing. When validate is set, Filter fails
// fast on unknown servers or tool names before producing any output. A
// zero-valued spec (no name, no servers) is treated by callers as "no
// toolset" and never reaches Filter.
func Filter(tools []domain.Tool, spec domain.ToolsetSpec, serverNames []string, validate bool) ([]domain.Tool, error) {
	if validate {
		if err := Validate(spec, tools, serverNames); err != nil {
			return nil, err
		}
	}

	var filtered []domain.Tool
	for _, t := range tools {
		sel, ok := spec.Servers[t.Server]
		if !ok {
			continue
		}
		if included(sel, t.Name) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func included(sel domain.ToolSelection, name string) bool {
	switch {
	case sel.All:
		return true
	case len(sel.Include) > 0:
		for _, n := range sel.Include {
			if n == name {
				return true
			}
		}
		return false
	case len(sel.Exclude) > 0:
		for _, n := range sel.Exclude {
			if n == name {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func sortedServers(spec domain.ToolsetSpec) []string {
	servers := make([]string, 0, len(spec.Servers))
	for name := range spec.Servers {
		servers = append(servers, name)
	}
	sort.Strings(servers)
	return servers
}

func availableList(available map[string]struct{}) string {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}
