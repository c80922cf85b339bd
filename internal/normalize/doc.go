// Package normalize turns a photographed document into a clean, upright image
// for text extraction.
//
// The pipeline runs crop, deskew, contrast and denoise in a fixed order, each
// stage toggled through config.Preprocessing. Cropping tries an ordered list
// of Detector strategies (edge contours, morphological closing, multi-scale
// local thresholds, a global Otsu box) and rectifies the first outline that
// covers enough of the frame. Deskew takes the median orientation of Hough
// line segments. Contrast equalizes luminance with CLAHE and denoise applies a
// bilateral filter.
//
// Every stage reports a StageResult; a failing stage hands the previous image
// to the next one, so normalization only fails when the file cannot be read
// or written.
package normalize
