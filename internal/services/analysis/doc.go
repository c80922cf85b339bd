// Package analysis turns extracted document text into validated metadata.
//
// The model answer is checked against an embedded JSON schema, then
// normalised: unknown types become "other", empty categories become
// "General", dates in YYYY-MM-DD, DD.MM.YYYY or DD/MM/YYYY form are parsed,
// Swiss-formatted amounts are accepted and confidence is capped by the OCR
// confidence. Analyze never returns an error; callers always receive a usable
// Result, with Fallback set when the model could not help.
package analysis
