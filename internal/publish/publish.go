// Package publish writes a fully serialized patch to its destination in a
// single step, so a failed write never leaves a truncated plugin behind.
//
// Destinations are filesystem paths, "s3://bucket/key" object URLs and
// "mem://name" keys for tests. Mux routes a destination to the publisher
// registered for its scheme.
package publish

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Publisher stores data under dest atomically: either the whole of data is
// visible at dest afterwards or dest is left as it was.
type Publisher interface {
	Publish(ctx context.Context, dest string, data []byte) error
}

// Scheme returns the URL scheme of dest, or "" for plain filesystem paths.
// Single-letter schemes are treated as Windows drive letters.
func Scheme(dest string) string {
	i := strings.Index(dest, "://")
	if i <= 1 {
		return ""
	}
	return strings.ToLower(dest[:i])
}

// Mux dispatches by destination scheme. Paths without a scheme go to the
// filesystem publisher.
type Mux struct {
	fs      Publisher
	schemes map[string]Publisher
}

// MuxOption configures a Mux.
type MuxOption func(*Mux)

// WithScheme registers p for destinations of the given scheme.
func WithScheme(scheme string, p Publisher) MuxOption {
	return func(m *Mux) {
		m.schemes[strings.ToLower(scheme)] = p
	}
}

// WithFilesystem replaces the publisher for scheme-less paths.
func WithFilesystem(p Publisher) MuxOption {
	return func(m *Mux) {
		m.fs = p
	}
}

// NewMux returns a mux publishing plain paths through FS.
func NewMux(opts ...MuxOption) *Mux {
	m := &Mux{fs: &FS{}, schemes: make(map[string]Publisher)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Publish routes dest to the publisher for its scheme.
func (m *Mux) Publish(ctx context.Context, dest string, data []byte) error {
	scheme := Scheme(dest)
	if scheme == "" || scheme == "file" {
		return m.fs.Publish(ctx, strings.TrimPrefix(dest, "file://"), data)
	}
	p, ok := m.schemes[scheme]
	if !ok {
		return fmt.Errorf("no publisher for scheme %q (known: %s)", scheme, strings.Join(m.Schemes(), ", "))
	}
	return p.Publish(ctx, dest, data)
}

// Schemes lists the registered schemes in order.
func (m *Mux) Schemes() []string {
	out := make([]string, 0, len(m.schemes))
	for s := range m.schemes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParseObjectURL splits "scheme://bucket/key" into bucket and key.
func ParseObjectURL(dest string) (bucket, key string, err error) {
	u, err := url.Parse(dest)
	if err != nil {
		return "", "", fmt.Errorf("parse destination %q: %w", dest, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("destination %q: want %s://bucket/key", dest, u.Scheme)
	}
	return bucket, key, nil
}
