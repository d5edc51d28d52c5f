// Package sanitizer holds small string helpers for untrusted input that ends
// up in logs or numeric parsers.
//
//	if !sanitizer.IsDigits(sanitizer.StripLineBreaks(v)) {
//		log.Warn("bad header", "value", sanitizer.LogValue(v))
//	}
package sanitizer
