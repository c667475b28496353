// Package simplecms provides a generic content-type engine: caller-declared
// record shapes ("content types"), validated instances of those shapes
// ("content items") and typed links between items ("relations"), stored
// through a pluggable Adapter.
//
// A Registry syncs declarations into storage once per process and serves
// stored types upgraded to the current schema representation. The Service
// built by New validates every write against the type's schema, resolves
// relation fields (including inline creation of targets), and runs
// host-supplied Hooks around each write.
//
// Adapters for memory and PostgreSQL are provided under repo/. Caches for
// serialized content types are under cache/.
package simplecms
