package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MaxLineSize bounds a single trace line; decoded results can be long.
// A longer line is drained and handed to the callback as an empty line,
// so it classifies as a non-match instead of aborting the scan.
const MaxLineSize = 1024 * 1024

// Scan calls fn for every line of r, numbering lines from 1.
// It returns an error only when reading the source fails.
func Scan(r io.Reader, fn func(lineNo int, line string)) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var buf []byte
	overlong := false
	lineNo := 0
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read trace at line %d: %w", lineNo+1, err)
		}

		if !overlong {
			buf = append(buf, chunk...)
			if len(buf) > MaxLineSize {
				overlong = true
				buf = buf[:0]
			}
		}
		if isPrefix {
			continue
		}

		lineNo++
		if overlong {
			fn(lineNo, "")
		} else {
			fn(lineNo, string(buf))
		}
		buf = buf[:0]
		overlong = false
	}
}
