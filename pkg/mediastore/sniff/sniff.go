// Package sniff detects the media type of a blob from its leading bytes.
package sniff

import "github.com/gabriel-vasile/mimetype"

// Limit is the number of leading bytes inspected.
const Limit = 1024

// Fallback is reported when nothing more specific is recognised.
const Fallback = "application/octet-stream"

// Detector wraps mimetype detection. The zero value is ready to use.
type Detector struct{}

// New returns a Detector.
func New() *Detector {
	return &Detector{}
}

// Detect returns the media type of prefix. Only the first Limit bytes are
// considered. Parameters such as "; charset=utf-8" are kept as reported.
func (d *Detector) Detect(prefix []byte) string {
	return Detect(prefix)
}

// Detect is the package-level form of Detector.Detect.
func Detect(prefix []byte) string {
	if len(prefix) > Limit {
		prefix = prefix[:Limit]
	}
	mt := mimetype.Detect(prefix)
	if mt == nil || mt.String() == "" {
		return Fallback
	}
	return mt.String()
}
