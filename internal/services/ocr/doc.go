// Package ocr extracts plain text from uploads with local command line tools.
//
// Images go through tesseract in TSV mode so one run yields both the words
// and their confidences; the document confidence is the mean word confidence
// scaled to [0,1]. PDFs go through pdftotext and report confidence 1.0 when
// they carry a text layer. Other files are reported as unsupported with empty
// text rather than an error.
package ocr
