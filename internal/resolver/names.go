package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"twquote/internal/provider"
)

// NameResolver finds a display name for a code. Sources are asked in order,
// then the static table, then the code itself is echoed.
type NameResolver struct {
	Sources []provider.NameSource
	Table   map[string]string
	Timeout time.Duration
	Log     zerolog.Logger
}

// ResolveName never fails. A nil NameResolver echoes the code.
func (n *NameResolver) ResolveName(ctx context.Context, code string) string {
	if n == nil {
		return code
	}
	for i, src := range n.Sources {
		name, err := n.lookup(ctx, src, code)
		if err == nil && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
		n.Log.Debug().Err(err).Int("source", i).Str("code", code).Msg("name lookup miss")
	}
	if name, ok := n.Table[code]; ok && name != "" {
		return name
	}
	return code
}

func (n *NameResolver) lookup(ctx context.Context, src provider.NameSource, code string) (name string, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(n.Timeout))
	defer cancel()
	defer recoverInto(&err)
	return src.LookupName(ctx, code)
}
