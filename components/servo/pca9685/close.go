package pca9685

import (
	"io"

	"go.uber.org/multierr"
)

// multierrClose closes c and combines its error with err.
func multierrClose(err error, c io.Closer) error {
	return multierr.Combine(err, c.Close())
}
