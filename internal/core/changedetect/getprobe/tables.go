package getprobe

import "strings"

// expectedMimetypes maps a catalog format tag to its acceptable
// Content-Type values.
var expectedMimetypes = map[string][]string{
	"json":    {"application/json"},
	"geojson": {"application/json", "application/geo+json"},
	"shp":     {"application/zip", "application/x-zip-compressed"},
	"csv":     {"text/csv", "application/zip", "application/x-zip-compressed"},
	"xls":     {"application/vnd.ms-excel"},
	"xlsx":    {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
}

// ignoredMimetypes are never used to reject: treated as "unknown, accept".
var ignoredMimetypes = map[string]struct{}{
	"application/octet-stream": {},
	"application/binary":       {},
}

// expectedSignatures maps a catalog format tag to its acceptable
// leading-byte signatures.
var expectedSignatures = map[string][][]byte{
	"json":    {[]byte("["), []byte(" ["), []byte("{"), []byte(" {")},
	"geojson": {[]byte("["), []byte(" ["), []byte("{"), []byte(" {")},
	"shp":     {{0x50, 0x4B, 0x03, 0x04}},
	"xls":     {{0xD0, 0xCF, 0x11, 0xE0}},
	"xlsx":    {{0x50, 0x4B, 0x03, 0x04}},
}

const xlsxMimetype = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func mimetypeMatches(format, contentType string) bool {
	expected, ok := expectedMimetypes[strings.ToLower(format)]
	if !ok {
		return true // format not in the table: nothing to validate against
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return true
	}
	if _, ignored := ignoredMimetypes[ct]; ignored {
		return true
	}
	for _, e := range expected {
		if strings.Contains(ct, e) {
			return true
		}
	}
	return false
}

func signatureMatches(format string, signature []byte) bool {
	expected, ok := expectedSignatures[strings.ToLower(format)]
	if !ok {
		return true // format not in the table: nothing to validate against
	}
	for _, sig := range expected {
		if len(signature) >= len(sig) && string(signature[:len(sig)]) == string(sig) {
			return true
		}
	}
	return false
}
