package store

import (
	"errors"
	"time"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/patch"
	"github.com/roach88/bashed/internal/record"
)

// Build statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrBuildNotFound is returned when no build matches the requested id.
var ErrBuildNotFound = errors.New("build not found")

// Build is one recorded patch build.
type Build struct {
	ID        string           `json:"id"`
	Seq       int64            `json:"seq"`
	StartedAt time.Time        `json:"started_at"`
	Game      string           `json:"game"`
	Name      string           `json:"name"`
	Dest      string           `json:"dest,omitempty"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	SHA256    string           `json:"sha256,omitempty"`
	Size      int              `json:"size,omitempty"`
	Stats     patch.Stats      `json:"stats"`
	Summary   conflict.Summary `json:"summary"`

	// Plugins and Conflicts are filled by GetBuild only.
	Plugins   []Plugin   `json:"plugins,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Plugin is one entry of a build's load order.
type Plugin struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Conflict is one object a later plugin changed.
type Conflict struct {
	FormID   record.FormID    `json:"formid"`
	Type     record.Signature `json:"type"`
	EditorID string           `json:"editor_id,omitempty"`
	Status   conflict.Status  `json:"status"`
	Winner   string           `json:"winner,omitempty"`
	Fields   []conflict.Field `json:"fields"`
}

// NewBuild describes a successful build of bp from s, written as out.
// Only objects some plugin changed are kept, with their changed fields.
func NewBuild(game string, s *patch.Session, bp *patch.BashedPatch, out patch.Output) Build {
	b := Build{
		Game:    game,
		Name:    bp.Plugin.Name,
		Dest:    out.Dest,
		Status:  StatusOK,
		SHA256:  out.SHA256,
		Size:    out.Size,
		Stats:   bp.Stats,
		Summary: bp.Summary,
		Plugins: plugins(s),
	}
	for _, r := range bp.Conflicts {
		if r.Status() == conflict.Unchanged {
			continue
		}
		c := Conflict{FormID: r.Key, Type: r.Type, EditorID: r.EditorID, Status: r.Status(), Winner: r.Winner}
		for _, f := range r.Fields {
			if f.Status != conflict.Unchanged {
				c.Fields = append(c.Fields, f)
			}
		}
		b.Conflicts = append(b.Conflicts, c)
	}
	return b
}

// FailedBuild describes a build that stopped with err. s may be nil when
// loading failed.
func FailedBuild(game, name string, s *patch.Session, err error) Build {
	return Build{Game: game, Name: name, Status: StatusFailed, Error: err.Error(), Plugins: plugins(s)}
}

func plugins(s *patch.Session) []Plugin {
	if s == nil {
		return nil
	}
	out := make([]Plugin, 0, s.Order.Len())
	for _, name := range s.Order.Names() {
		out = append(out, Plugin{Name: name, Active: s.Order.IsActive(name)})
	}
	return out
}
