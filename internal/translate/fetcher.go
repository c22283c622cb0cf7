package translate

import "context"

// BuildInfo is the identity of a build that steps inherit as labels.
type BuildInfo struct {
	BuilderID int64
	WorkerID  int64
}

// BuildFetcher looks up a build by id on the host.
type BuildFetcher interface {
	FetchBuild(ctx context.Context, buildID int64) (BuildInfo, error)
}

// BuildFetcherFunc adapts a function to BuildFetcher.
type BuildFetcherFunc func(ctx context.Context, buildID int64) (BuildInfo, error)

// FetchBuild calls f.
func (f BuildFetcherFunc) FetchBuild(ctx context.Context, buildID int64) (BuildInfo, error) {
	return f(ctx, buildID)
}
