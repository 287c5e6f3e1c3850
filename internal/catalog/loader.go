// Package catalog loads and caches the item catalog: topic grouping and
// authored difficulty labels produced by external content collaborators.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches catalog content from the filesystem.
type Loader struct {
	rootDir string
	topics  map[string]Topic
	byItem  map[string]itemTag
	mu      sync.RWMutex
}

type itemTag struct {
	topicID    string
	difficulty string
}

// NewLoader creates a new catalog loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		topics:  make(map[string]Topic),
		byItem:  make(map[string]itemTag),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "topics", len(l.topics), "items", len(l.byItem))
	return l, nil
}

// Topic returns the topic ID an item belongs to, or "" if the item is
// not in the catalog.
func (l *Loader) Topic(itemID string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byItem[itemID].topicID
}

// DifficultyLabel returns the authored difficulty label for an item, or
// "" if the item is untagged.
func (l *Loader) DifficultyLabel(itemID string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byItem[itemID].difficulty
}

// Pool returns item IDs grouped by topic for queue building. With no
// arguments it covers the whole catalog; otherwise only the named
// topics, silently skipping unknown IDs.
func (l *Loader) Pool(topicIDs ...string) map[string][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(topicIDs) == 0 {
		topicIDs = make([]string, 0, len(l.topics))
		for id := range l.topics {
			topicIDs = append(topicIDs, id)
		}
		sort.Strings(topicIDs)
	}

	pool := make(map[string][]string, len(topicIDs))
	for _, id := range topicIDs {
		topic, ok := l.topics[id]
		if !ok {
			continue
		}
		items := make([]string, 0, len(topic.Items))
		for _, it := range topic.Items {
			items = append(items, it.ID)
		}
		pool[id] = items
	}
	return pool
}

// AllTopics returns all loaded topics sorted by ID.
func (l *Loader) AllTopics() []Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	topics := make([]Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	return topics
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadTopic(path)
		}
		return nil
	})
}

func (l *Loader) loadTopic(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}

	if topic.ID == "" {
		return nil // Not a topic file
	}

	l.mu.Lock()
	l.topics[topic.ID] = topic
	for _, it := range topic.Items {
		l.byItem[it.ID] = itemTag{topicID: topic.ID, difficulty: it.Difficulty}
	}
	l.mu.Unlock()

	return nil
}
