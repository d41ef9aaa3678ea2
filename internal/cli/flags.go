package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/record"
)

// tagsValue collects per-plugin tag assignments of the form
// "Plugin.esp=Relev,Delev". The flag may repeat; tags for the same plugin
// accumulate.
type tagsValue struct {
	plugins []string
	tags    map[string][]string
}

var _ pflag.Value = (*tagsValue)(nil)

func (v *tagsValue) Set(s string) error {
	plugin, list, ok := strings.Cut(s, "=")
	plugin = strings.TrimSpace(plugin)
	if !ok || plugin == "" {
		return fmt.Errorf("expected Plugin=Tag[,Tag...], got %q", s)
	}
	var tags []string
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return fmt.Errorf("no tags given for %s", plugin)
	}
	if v.tags == nil {
		v.tags = make(map[string][]string)
	}
	if _, seen := v.tags[plugin]; !seen {
		v.plugins = append(v.plugins, plugin)
	}
	v.tags[plugin] = append(v.tags[plugin], tags...)
	return nil
}

func (v *tagsValue) String() string {
	parts := make([]string, 0, len(v.plugins))
	for _, p := range v.plugins {
		parts = append(parts, p+"="+strings.Join(v.tags[p], ","))
	}
	return strings.Join(parts, ";")
}

func (v *tagsValue) Type() string {
	return "plugin=tags"
}

// apply adds the collected tags to t.
func (v *tagsValue) apply(t merge.Tags) {
	for _, p := range v.plugins {
		t.Add(p, v.tags[p]...)
	}
}

// sigsValue is a comma-separated list of record type signatures.
type sigsValue []record.Signature

var _ pflag.Value = (*sigsValue)(nil)

func (v *sigsValue) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sig, err := record.ParseSignature(part)
		if err != nil {
			return err
		}
		if !slices.Contains(*v, sig) {
			*v = append(*v, sig)
		}
	}
	return nil
}

func (v *sigsValue) String() string {
	parts := make([]string, len(*v))
	for i, s := range *v {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

func (v *sigsValue) Type() string {
	return "signatures"
}
