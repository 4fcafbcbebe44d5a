package runner

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmwave/common"
)

const pumpChunkSize = 4096

// Pump drains r to EOF. Every complete line is appended to the returned capture and
// logged at level as prefix+line without its newline. Trailing bytes without a newline
// are captured and logged once with an "[eof]" suffix.
//
// Invalid UTF-8 does not stop the drain; the error is reported after EOF so the
// writer on the other side never blocks on a full pipe.
func Pump(r io.Reader, log *logrus.Entry, level logrus.Level, prefix string) (string, error) {
	var (
		capture strings.Builder
		pending []byte
		badUTF8 bool
	)
	buf := make([]byte, pumpChunkSize)

	emit := func(line []byte, suffix string) {
		if badUTF8 {
			return
		}
		if !utf8.Valid(line) {
			badUTF8 = true
			return
		}
		capture.Write(line)
		log.Logf(level, "%s%s%s", prefix, bytes.TrimSuffix(line, []byte{'\n'}), suffix)
	}

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			start := 0
			for {
				i := bytes.IndexByte(pending[start:], '\n')
				if i < 0 {
					break
				}
				emit(pending[start:start+i+1], "")
				start += i + 1
			}
			pending = append(pending[:0], pending[start:]...)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return capture.String(), errors.Wrapf(readErr, "failed to read %s", strings.TrimSuffix(prefix, ": "))
		}
	}

	if len(pending) > 0 {
		emit(pending, common.EOFMarker)
	}
	if badUTF8 {
		return capture.String(), errors.Wrapf(ErrInvalidUTF8, "%s", strings.TrimSuffix(prefix, ": "))
	}
	return capture.String(), nil
}
