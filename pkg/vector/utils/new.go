package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/vector"
	"github.com/papercomputeco/reel/pkg/vector/chroma"
	"github.com/papercomputeco/reel/pkg/vector/chromem"
	"github.com/papercomputeco/reel/pkg/vector/inmemory"
	"github.com/papercomputeco/reel/pkg/vector/qdrant"
	"github.com/papercomputeco/reel/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// Target is a path for chromem and sqlite, a URL for chroma and a
	// host:port for qdrant.
	Target     string
	Collection string
	Dimensions uint
	Logger     *zap.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.VectorDriver, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewDriver(o.Dimensions), nil
	case "chromem":
		return chromem.NewChromemDriver(chromem.Config{
			Path:       o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "sqlite":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "chroma":
		return chroma.NewChromaDriver(ctx, chroma.Config{
			URL:            o.Target,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
			MaxRetries:     5,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewQdrantDriver(ctx, qdrant.Config{
			Target:         o.Target,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
