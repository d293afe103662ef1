// Package catalogue ships the reference catalogues of cultivations and
// fertilizers, keeps the database copy in sync and searches it.
//
// The catalogues are embedded YAML. Each entry carries a content hash so a
// sync only rewrites entries that changed:
//
//	svc := catalogue.New(repo, catalogue.WithLogger(log))
//	res, err := svc.Sync(ctx)
//	hits, err := svc.SearchCultivations(ctx, "mais", 10)
package catalogue
