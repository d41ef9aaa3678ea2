package patch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/bashed/internal/publish"
	"github.com/roach88/bashed/internal/telemetry"
)

// Output describes a written patch.
type Output struct {
	Dest   string `json:"dest"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// WritePatch serializes bp in full and hands the bytes to pub. An
// EncodingError surfaces before anything reaches dest.
func WritePatch(ctx context.Context, bp *BashedPatch, dest string, pub publish.Publisher) (_ Output, err error) {
	opts := bp.session.opts
	ctx, span := telemetry.Start(ctx, "write", attribute.String("dest", dest))
	defer func() { telemetry.End(span, err) }()
	defer opts.Metrics.Stage("write")()

	data, err := bp.Bytes()
	if err != nil {
		return Output{}, err
	}
	if err := pub.Publish(ctx, dest, data); err != nil {
		return Output{}, err
	}
	sum := sha256.Sum256(data)
	out := Output{Dest: dest, Size: len(data), SHA256: hex.EncodeToString(sum[:])}
	opts.Logger.Info("patch written", "dest", dest, "bytes", out.Size)
	return out, nil
}
