package discovery

import (
	"fmt"
	"sort"
	"strings"

	"mcpchat/internal/domain"
)

const (
	maxManifestToolNames = 4
	maxSynopsisLength    = 80
	// Servers with at most this many tools list every name; beyond it the
	// list truncates to the first few.
	manifestTruncateAbove = 10
)

// Manifest renders a compact description of deferred tools grouped by
// server, for embedding in the search capability's description. Per
// server: name, tool count, tool names (truncated past ten tools), and a
// short synopsis drawn from the tools' descriptions.
func Manifest(deferred map[string][]domain.Tool) string {
	servers := make([]string, 0, len(deferred))
	for name := range deferred {
		servers = append(servers, name)
	}
	sort.Strings(servers)

	var b strings.Builder
	for _, server := range servers {
		tools := deferred[server]
		if b.Len() > 0 {
			b.WriteByte('\n')
		}

		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.WireName
		}
		var nameList string
		if len(tools) > manifestTruncateAbove {
			nameList = fmt.Sprintf("%s, ... and %d more",
				strings.Join(names[:maxManifestToolNames], ", "),
				len(tools)-maxManifestToolNames)
		} else {
			nameList = strings.Join(names, ", ")
		}

		word := "tools"
		if len(tools) == 1 {
			word = "tool"
		}
		fmt.Fprintf(&b, "- %s (%d %s): %s", server, len(tools), word, nameList)

		if synopsis := summarize(tools); synopsis != "" {
			b.WriteString("\n  " + synopsis)
		}
	}
	return b.String()
}

// summarize joins the first sentence of each distinct tool description,
// truncated to the synopsis character budget.
func summarize(tools []domain.Tool) string {
	var sentences []string
	seen := make(map[string]struct{})
	for _, t := range tools {
		s := firstSentence(t.Description)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		sentences = append(sentences, s)
	}
	summary := strings.Join(sentences, " ")
	if len(summary) > maxSynopsisLength {
		summary = strings.TrimRight(summary[:maxSynopsisLength-3], " ") + "..."
	}
	return summary
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ". "); i != -1 {
		return text[:i+1]
	}
	return text
}
