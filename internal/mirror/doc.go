// Package mirror keeps a rendered document tree in step with a wiki source tree.
//
// The package holds the synchronization engine:
//
//   - MirrorPath / Mapper: the path-translation rule between the two trees
//   - Converter: runs the external converter on one document and writes its output
//   - Crawler: the bulk pass that reconverts every document under the source root
//   - Router: maps one ChangeEvent to a mirror-tree action
//
// # Path Translation
//
// A document's mirror path is the destination root joined with the document's path
// relative to the source root. The relative path is kept verbatim, suffix included:
//
//	src/wiki/start.txt  ->  dest/wiki/start.txt
//
// Setting Mapper.DestSuffix replaces the source suffix on documents only; directories
// are never renamed.
//
// # Event Routing
//
// Router dispatches on {Kind, IsDir} through a single table:
//
//	Created  dir   -> create mirror directory
//	Created  file  -> convert
//	Modified dir   -> no-op
//	Modified file  -> convert (overwrite)
//	Deleted  dir   -> remove mirror subtree
//	Deleted  file  -> remove mirror file
//	Moved    any   -> no-op (or remove the old mirror with PruneMoved)
//
// Every action is idempotent: removing an absent mirror and creating an existing
// directory both succeed.
//
// # Error Handling
//
// Conversion failures never leave this package as errors. They are logged, reported as
// a failed Activity, and the mirror file is left untouched. Filesystem errors from
// directory creation or removal are returned by Router.Route so the caller can log
// them and carry on.
package mirror
