package dataglue

import (
	"golang.org/x/xerrors"

	"github.com/okuraya/dataglue/notify"
)

// Option configures a Copier.
type Option interface {
	apply(*Copier) error
}

type optionFunc func(*Copier) error

func (f optionFunc) apply(c *Copier) error {
	return f(c)
}

// WithWorkDir sets the parent directory for the temporary shard files
// of a copy. The default is the system temp directory.
func WithWorkDir(dir string) Option {
	return optionFunc(func(c *Copier) error {
		if dir == "" {
			return xerrors.New("work dir must not be empty")
		}
		c.workDir = dir
		return nil
	})
}

// WithNotifier sets a notifier that receives a report whenever a copy
// finishes, successfully or not.
func WithNotifier(n notify.Notifier) Option {
	return optionFunc(func(c *Copier) error {
		if n == nil {
			return xerrors.New("notifier must not be nil")
		}
		c.notifier = n
		return nil
	})
}

// WithPrettyLogging configures the Copier to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(c *Copier) error {
		c.pretty = true
		return nil
	})
}

// WithLogLevel sets the log level by name, such as "debug" or "warn".
func WithLogLevel(level string) Option {
	return optionFunc(func(c *Copier) error {
		c.level = level
		return nil
	})
}
