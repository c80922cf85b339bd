// Package pdfarchive produces searchable PDF/A copies of uploads with
// ocrmypdf.
//
// PDFs are passed to ocrmypdf directly. Images are first wrapped into a
// single-page PDF with pdfcpu. A PDF that already carries text is copied
// unchanged and counts as success. When ocrmypdf fails the input PDF is
// copied to the output path and the result reports Success=false, so the
// archive always holds a PDF rendition when one could be produced.
package pdfarchive
