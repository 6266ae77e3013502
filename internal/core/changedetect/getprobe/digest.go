package getprobe

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxHashableBytes = 419_430_400 // ~400 MiB, spec.md §4.5.3

// streamResult is what streaming the body (and, for the xlsx special
// case, a second canonicalized pass) produces.
type streamResult struct {
	md5Hex      string
	byteCount   int64
	signature   []byte
	xlsxDigest  string // set only when the xlsx special case applied
	isXLSXCase  bool
}

// streamAndDigest reads body in chunks, maintaining a running MD5 and
// byte count. When useXLSXBuffering is true it additionally buffers the
// full body to compute the row-tuple canonical digest afterward
// (spec.md §4.5.5).
func streamAndDigest(body io.Reader, useXLSXBuffering bool) (streamResult, error) {
	hasher := md5.New()
	var xlsxBuf *bytes.Buffer
	if useXLSXBuffering {
		xlsxBuf = &bytes.Buffer{}
	}

	buf := make([]byte, 64*1024)
	var res streamResult
	first := true

	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if first {
				sigLen := 4
				if len(chunk) < sigLen {
					sigLen = len(chunk)
				}
				res.signature = append([]byte(nil), chunk[:sigLen]...)
				first = false
			}
			hasher.Write(chunk)
			res.byteCount += int64(n)
			if xlsxBuf != nil {
				xlsxBuf.Write(chunk)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return streamResult{}, err
		}
	}

	res.md5Hex = fmt.Sprintf("%x", hasher.Sum(nil))

	if xlsxBuf != nil {
		digest, err := xlsxRowDigest(xlsxBuf.Bytes())
		if err == nil {
			res.xlsxDigest = digest
			res.isXLSXCase = true
		}
		// on a read/parse failure we silently fall back to the plain MD5,
		// matching the original's "opportunistic content identity" caveat
	}

	return res, nil
}

// xlsxRowDigest computes an MD5 over the textual row representation of
// each worksheet: iterate sheets in workbook order, iterate rows
// top-to-bottom, concatenate each row's string form into the digest.
// This makes the digest insensitive to non-content workbook reshuffling.
func xlsxRowDigest(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := md5.New()
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		for _, row := range rows {
			hasher.Write([]byte(strings.Join(row, ", ")))
		}
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
