// Package fetcher downloads source datasets and streams delimited records
// out of them line by line.
package fetcher

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors for delimited record decoding.
var (
	// ErrUnterminatedQuote marks a line whose last quoted field never closes.
	ErrUnterminatedQuote = eris.New("records: unterminated quoted field")
	// ErrTruncated marks a stream that ends in the middle of a record.
	ErrTruncated = eris.New("records: stream truncated mid-record")
)

const quote = '"'

// SplitLine splits one line of delimited text into fields in a single
// left-to-right scan. A field wrapped in double quotes may contain the
// delimiter, and a doubled quote inside it decodes to one quote character.
// The line must not include its trailing newline.
func SplitLine(line string, delim byte) ([]string, error) {
	fields := make([]string, 0, 8)

	var buf strings.Builder
	buf.Grow(len(line))
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuotes:
			if c != quote {
				buf.WriteByte(c)
				continue
			}
			if i+1 < len(line) && line[i+1] == quote {
				buf.WriteByte(quote)
				i++
				continue
			}
			inQuotes = false
		case c == quote:
			inQuotes = true
		case c == delim:
			fields = append(fields, buf.String())
			buf.Reset()
		default:
			buf.WriteByte(c)
		}
	}

	if inQuotes {
		return nil, ErrUnterminatedQuote
	}
	return append(fields, buf.String()), nil
}

// Record is one decoded line. Err is set, and Fields is nil, when the line
// could not be split; such records are data anomalies, not stream failures.
type Record struct {
	Line   int64
	Fields []string
	Err    error
}

// RecordOptions configures StreamRecords.
type RecordOptions struct {
	Delimiter byte // default ','
	HasHeader bool // if true, the first line is discarded
	Buffer    int  // channel capacity, default 64
}

// StreamRecords reads r one line at a time and sends each decoded line on the
// returned channel. It never holds more than one line in memory. Lines that
// fail to split are forwarded with Record.Err set. A read failure, or a final
// line cut off inside a quoted field, is sent on the error channel and ends
// the stream. Both channels are closed when processing completes; the
// sequence is finite and cannot be restarted.
func StreamRecords(ctx context.Context, r io.Reader, opts RecordOptions) (<-chan Record, <-chan error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}

	recCh := make(chan Record, opts.Buffer)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		br := bufio.NewReaderSize(r, 1<<20)
		var lineNo int64

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "records: context cancelled")
				return
			}

			raw, readErr := br.ReadString('\n')
			if readErr != nil && readErr != io.EOF {
				errCh <- eris.Wrapf(readErr, "records: read line %d", lineNo+1)
				return
			}
			if raw == "" && readErr == io.EOF {
				return
			}

			lineNo++
			terminated := strings.HasSuffix(raw, "\n")
			line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")

			if lineNo == 1 && opts.HasHeader {
				if readErr == io.EOF {
					return
				}
				continue
			}

			fields, splitErr := SplitLine(line, opts.Delimiter)
			if splitErr != nil && !terminated {
				errCh <- eris.Wrapf(ErrTruncated, "line %d", lineNo)
				return
			}

			rec := Record{Line: lineNo, Fields: fields}
			if splitErr != nil {
				rec.Err = eris.Wrapf(splitErr, "line %d", lineNo)
			}

			select {
			case recCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "records: context cancelled")
				return
			}

			if readErr == io.EOF {
				return
			}
		}
	}()

	return recCh, errCh
}
