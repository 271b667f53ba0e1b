package tools

import (
	"context"
	"fmt"
	"sort"
)

// Tool names form the registry's closed set. The planner may only select from
// these; anything else becomes a failure result at execution time.
const (
	BrainSearch       = "brain_search"
	MediumList        = "medium_list"
	MediumRead        = "medium_read"
	YouTubeSearch     = "youtube_search"
	YouTubeTranscript = "youtube_transcript"
	GitHubSearch      = "github_search"
	GitHubRead        = "github_read"
	SendEmail         = "send_email"
)

// Tool is the uniform invocation contract every capability implements.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args map[string]string) (string, error)
}

// Registry holds the closed set of tools, bound once at startup.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry from the given tools. Duplicate names are a
// wiring bug and rejected outright.
func NewRegistry(ts ...Tool) (*Registry, error) {
	m := make(map[string]Tool, len(ts))
	for _, t := range ts {
		if _, ok := m[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Name())
		}
		m[t.Name()] = t
	}
	return &Registry{tools: m}, nil
}

// Lookup returns the tool bound to name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
