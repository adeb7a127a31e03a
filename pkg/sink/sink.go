// Package sink provides handlers that write consumed records to an output:
// JSON lines, delimited text, the reduced container format, Avro object
// container files and Kafka topics.
//
// Every sink owns its output and closes it in End. Write failures are
// returned as processing errors and stop the run.
package sink

import (
	"io"

	"github.com/ajitpratap0/avrostream/pkg/errors"
)

func closeOutput(w io.Writer, what string) error {
	c, ok := w.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to close "+what)
	}
	return nil
}
