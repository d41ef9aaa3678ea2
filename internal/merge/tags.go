package merge

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/bashed/internal/record"
)

// Tags is the per-plugin set of selection tags. Plugin names compare
// case-insensitively; tags compare exactly.
type Tags map[string]map[string]bool

// NewTags returns a tag set from plugin name to tag list.
func NewTags(m map[string][]string) Tags {
	t := make(Tags, len(m))
	for plugin, tags := range m {
		t.Add(plugin, tags...)
	}
	return t
}

// Add adds tags to plugin.
func (t Tags) Add(plugin string, tags ...string) {
	k := record.FoldName(plugin)
	set, ok := t[k]
	if !ok {
		set = make(map[string]bool, len(tags))
		t[k] = set
	}
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			set[tag] = true
		}
	}
}

// Remove removes tags from plugin.
func (t Tags) Remove(plugin string, tags ...string) {
	set := t[record.FoldName(plugin)]
	for _, tag := range tags {
		delete(set, tag)
	}
}

// Has reports whether plugin carries tag.
func (t Tags) Has(plugin, tag string) bool {
	return t[record.FoldName(plugin)][tag]
}

// Of returns the tags of plugin, sorted.
func (t Tags) Of(plugin string) []string {
	return slices.Sorted(maps.Keys(t[record.FoldName(plugin)]))
}

var descriptionTags = regexp.MustCompile(`\{\{\s*BASH\s*:([^}]*)\}\}`)

// DescriptionTags extracts the tags a plugin author embedded in the
// plugin description as {{BASH:Tag1,Tag2}}. Several blocks may appear.
func DescriptionTags(description string) []string {
	var out []string
	for _, m := range descriptionTags.FindAllStringSubmatch(description, -1) {
		for _, tag := range strings.Split(m[1], ",") {
			if tag = strings.TrimSpace(tag); tag != "" && !slices.Contains(out, tag) {
				out = append(out, tag)
			}
		}
	}
	return out
}
