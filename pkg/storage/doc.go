// Package storage persists what a crawl session produces.
//
// ResultStore owns the per-query results file (urls.json by default), a JSON
// array of {"title": string|null, "url": string} records. Load returns an
// empty set for a fresh directory or in force mode; Save rewrites the whole
// file atomically and never merges on its own, so callers pass the union of
// what they loaded and what they harvested.
//
// Files manages a download directory: it caches which names exist and
// publishes streamed bodies through temporary files, using a hard link for
// create-if-absent semantics when overwriting is not wanted.
//
//	store := storage.NewResultStore(dir, storage.DefaultResultsFile, log)
//	known, err := store.Load(mode.Force())
//	...
//	err = store.Save(known.Union(harvested))
package storage
