// Package archive files processed documents into the on-disk filing cabinet
// and answers the read-side questions about it.
//
// The cabinet layout is <root>/<year>/<category>/<kind>/<shortid>_<stem>.<ext>.
// Documents without a named category (empty or General) share the
// unclassified bucket, both on disk and in the browse helpers, so the two
// views always agree. Searchable PDF copies sit next to the original with an
// _ocr suffix and a .pdf extension.
//
// Placement always moves files. Cross-filesystem moves fall back to a
// verified copy followed by removal of the source.
package archive
