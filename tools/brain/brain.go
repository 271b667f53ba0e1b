package brain

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve"
	"gopkg.in/yaml.v3"

	"github.com/pamudu-ranasinghe/virtualme/tools"
)

// Search answers queries against the local markdown knowledge corpus. Shortcut
// keys from shortcuts.yaml resolve files directly; free keywords go through an
// in-memory full-text index built once at startup.
type Search struct {
	root      string
	topN      int
	shortcuts map[string]string
	index     bleve.Index
}

type document struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// New builds the corpus index under root. Missing shortcuts.yaml is fine; a
// corpus with no markdown files is not an error either, searches just come
// back empty.
func New(root string, topN int) (*Search, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving brain root: %w", err)
	}
	if topN <= 0 {
		topN = 3
	}

	s := &Search{root: abs, topN: topN, shortcuts: map[string]string{}}

	if raw, err := os.ReadFile(filepath.Join(abs, "shortcuts.yaml")); err == nil {
		var m map[string]string
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parsing shortcuts.yaml: %w", err)
		}
		for k, v := range m {
			s.shortcuts[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating brain index: %w", err)
	}
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return idx.Index(rel, document{Path: rel, Content: string(content)})
	})
	if err != nil {
		if os.IsNotExist(err) {
			s.index = idx
			return s, nil
		}
		return nil, fmt.Errorf("indexing brain corpus: %w", err)
	}
	s.index = idx
	return s, nil
}

func (s *Search) Name() string { return tools.BrainSearch }

// Invoke resolves "shortcuts" (comma-separated keys) and "keywords"
// (free text) into concatenated corpus excerpts.
func (s *Search) Invoke(ctx context.Context, args map[string]string) (string, error) {
	var sections []string

	for _, key := range splitList(args["shortcuts"]) {
		rel, ok := s.shortcuts[strings.ToLower(key)]
		if !ok {
			continue
		}
		content, err := s.readSafe(rel)
		if err != nil {
			continue
		}
		sections = append(sections, fmt.Sprintf("--- BRAIN: %s ---\n%s", rel, content))
	}

	if kw := strings.TrimSpace(args["keywords"]); kw != "" {
		query := bleve.NewMatchQuery(kw)
		req := bleve.NewSearchRequestOptions(query, s.topN, 0, false)
		res, err := s.index.Search(req)
		if err != nil {
			return "", fmt.Errorf("brain search: %w", err)
		}
		for _, hit := range res.Hits {
			content, err := s.readSafe(hit.ID)
			if err != nil {
				continue
			}
			sections = append(sections, fmt.Sprintf("--- BRAIN: %s ---\n%s", hit.ID, content))
		}
	}

	if len(sections) == 0 {
		return "no matching entries in the knowledge base", nil
	}
	return strings.Join(sections, "\n\n"), nil
}

// readSafe reads a corpus file by relative path, rejecting anything that
// escapes the root.
func (s *Search) readSafe(rel string) (string, error) {
	full := filepath.Clean(filepath.Join(s.root, rel))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes brain root: %s", rel)
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
