// Package main hosts the docarchive maintenance CLI.
//
// Commands open the document store directly: they ingest single files,
// reprocess documents, browse the archive, export it to a workbook and report
// on the health of the local toolchain. The watch-folder daemon can also be run
// in the foreground from here.
//
// Keep this package lean. New behavior belongs in the internal packages and is
// only surfaced through a command or flag here.
package main
