package sink

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// DelimitedWriter writes the string form of every field joined by a
// delimiter, one line per record. Nulls are written as empty strings.
//
// A single-character delimiter goes through encoding/csv, so values holding
// the delimiter, a quote or a line break are quoted. Longer delimiters are
// joined as is and values are not quoted.
type DelimitedWriter struct {
	w         io.Writer
	cw        *csv.Writer
	bw        *bufio.Writer
	delimiter string
	header    bool
	fields    []string
}

var _ handler.Handler = (*DelimitedWriter)(nil)

// NewDelimitedWriter writes to w. With header set, the first line holds the
// field names of the first record's schema.
func NewDelimitedWriter(w io.Writer, delimiter string, header bool) *DelimitedWriter {
	if delimiter == "" {
		delimiter = ","
	}
	d := &DelimitedWriter{w: w, delimiter: delimiter, header: header}
	if r, size := utf8.DecodeRuneInString(delimiter); size == len(delimiter) && csvComma(r) {
		d.cw = csv.NewWriter(w)
		d.cw.Comma = r
	} else {
		d.bw = bufio.NewWriter(w)
	}
	return d
}

func csvComma(r rune) bool {
	return r != utf8.RuneError && r != '"' && r != '\r' && r != '\n'
}

// Begin implements handler.Handler.
func (d *DelimitedWriter) Begin() error { return nil }

// Consume implements handler.Handler.
func (d *DelimitedWriter) Consume(r *record.Record) error {
	if d.header {
		d.header = false
		if err := d.line(r.Schema().Names()); err != nil {
			return err
		}
	}

	d.fields = d.fields[:0]
	for _, v := range r.Values() {
		d.fields = append(d.fields, record.Format(v))
	}
	return d.line(d.fields)
}

func (d *DelimitedWriter) line(fields []string) error {
	if d.cw != nil {
		if err := d.cw.Write(fields); err != nil {
			return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write delimited output")
		}
		return nil
	}
	d.bw.WriteString(strings.Join(fields, d.delimiter))
	if err := d.bw.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write delimited output")
	}
	return nil
}

// End implements handler.Handler.
func (d *DelimitedWriter) End() error {
	var err error
	if d.cw != nil {
		d.cw.Flush()
		err = d.cw.Error()
	} else {
		err = d.bw.Flush()
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write delimited output")
	}
	return closeOutput(d.w, "delimited output")
}
