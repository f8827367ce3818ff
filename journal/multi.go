package journal

import "go.uber.org/multierr"

// Multi fans every record out to several journals. A failing sink does not
// stop the others; their errors are combined.
type Multi []Journal

func (m Multi) Record(r AuditRecord) error {
	var err error
	for _, j := range m {
		err = multierr.Append(err, j.Record(r))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, j := range m {
		err = multierr.Append(err, j.Close())
	}
	return err
}
