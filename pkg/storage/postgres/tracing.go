package postgres

import "github.com/platinummonkey/funnelpulse/pkg/observability"

var tracer = observability.Tracer("storage/postgres")
