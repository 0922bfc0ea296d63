// Package sharevault provides the content listing, caching and authoring core
// behind the ShareVault site.
//
// It exposes a single Service interface that serves paginated post listings,
// category summaries and single posts through a memoizing cache, and that
// handles authoring writes together with the cache invalidation they require.
// Repository implementations (memory, MongoDB, Postgres) and blob stores
// (memory, filesystem, S3) are provided under subpackages.
//
// # Ordering
//
// Listings are windows over a deterministically ordered result set: creation
// time descending, ties broken by identifier ascending. Offset/limit always
// refer to that order, so adjacent pages never overlap when no writes happen
// between the two reads.
//
// # Categories
//
// Category routes carry a slug. The authoritative way back from a slug to a
// category name is the category index that every write maintains. FromSlug is
// a lossy heuristic and is only consulted for slugs missing from the index.
package sharevault
