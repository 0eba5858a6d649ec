package broker

import (
	"fmt"
	"strings"
	"sync"
)

// FilterSet holds MQTT-style topic filters and matches topic names against
// them. Exact filters live in a map, wildcard filters in a segment tree.
type FilterSet struct {
	exact     map[string]struct{}
	wildcards *topicNode
	mu        sync.RWMutex
}

type topicNode struct {
	isEnd    bool
	children map[string]*topicNode
}

func newTopicNode() *topicNode {
	return &topicNode{children: make(map[string]*topicNode)}
}

// NewFilterSet creates an empty filter set
func NewFilterSet() *FilterSet {
	return &FilterSet{
		exact:     make(map[string]struct{}),
		wildcards: newTopicNode(),
	}
}

// Add registers a topic filter
func (fs *FilterSet) Add(filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return fmt.Errorf("invalid topic filter: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !isWildcard(filter) {
		fs.exact[filter] = struct{}{}
		return nil
	}

	current := fs.wildcards
	for _, segment := range strings.Split(filter, "/") {
		next, ok := current.children[segment]
		if !ok {
			next = newTopicNode()
			current.children[segment] = next
		}
		current = next
	}
	current.isEnd = true
	return nil
}

// Remove unregisters a topic filter and reports whether it was registered
func (fs *FilterSet) Remove(filter string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !isWildcard(filter) {
		_, ok := fs.exact[filter]
		delete(fs.exact, filter)
		return ok
	}
	return removeNode(fs.wildcards, strings.Split(filter, "/"))
}

// removeNode clears the end mark of the filter path and prunes branches left
// without filters
func removeNode(node *topicNode, segments []string) bool {
	if len(segments) == 0 {
		if !node.isEnd {
			return false
		}
		node.isEnd = false
		return true
	}

	child, ok := node.children[segments[0]]
	if !ok {
		return false
	}
	removed := removeNode(child, segments[1:])
	if removed && !child.isEnd && len(child.children) == 0 {
		delete(node.children, segments[0])
	}
	return removed
}

// Match returns every registered filter that matches topic
func (fs *FilterSet) Match(topic string) []string {
	if err := ValidateTopicName(topic); err != nil {
		return nil
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var matches []string
	if _, ok := fs.exact[topic]; ok {
		matches = append(matches, topic)
	}
	matchNode(fs.wildcards, strings.Split(topic, "/"), 0, "", &matches)
	return matches
}

// Filters returns all registered filters
func (fs *FilterSet) Filters() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	filters := make([]string, 0, len(fs.exact))
	for f := range fs.exact {
		filters = append(filters, f)
	}
	collectFilters(fs.wildcards, "", &filters)
	return filters
}

func matchNode(node *topicNode, segments []string, depth int, path string, matches *[]string) {
	// '#' also matches the parent level
	if wildcard, ok := node.children["#"]; ok && wildcard.isEnd {
		*matches = append(*matches, joinSegment(path, "#"))
	}

	if depth == len(segments) {
		if node.isEnd && path != "" {
			*matches = append(*matches, path)
		}
		return
	}

	segment := segments[depth]
	if child, ok := node.children[segment]; ok && segment != "+" && segment != "#" {
		matchNode(child, segments, depth+1, joinSegment(path, segment), matches)
	}
	if child, ok := node.children["+"]; ok {
		matchNode(child, segments, depth+1, joinSegment(path, "+"), matches)
	}
}

func collectFilters(node *topicNode, path string, out *[]string) {
	if node.isEnd && path != "" {
		*out = append(*out, path)
	}
	for segment, child := range node.children {
		collectFilters(child, joinSegment(path, segment), out)
	}
}

func joinSegment(path, segment string) string {
	if path == "" {
		return segment
	}
	return path + "/" + segment
}

func isWildcard(filter string) bool {
	return strings.ContainsAny(filter, "+#")
}

// ValidateFilter validates a subscription topic filter
func ValidateFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		// Allow empty segments for leading/trailing slashes
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("empty segment not allowed in middle of topic")
		}

		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("# wildcard must occupy entire segment")
			}
			if i != len(segments)-1 {
				return fmt.Errorf("# wildcard must be the last segment")
			}
		}

		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("+ wildcard must occupy entire segment")
		}
	}

	return nil
}

// ValidateTopicName validates a publish topic name
func ValidateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	if isWildcard(topic) {
		return fmt.Errorf("wildcards not allowed in topic names")
	}

	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("empty segment not allowed in middle of topic")
		}
	}

	return nil
}
