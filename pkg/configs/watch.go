package configs

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// UntilModifyContext returns a context that is canceled
// when one of target files is modified (= written, created, removed, or renamed).
//
// Daemons run under this context with their config file as target,
// so that they stop (and get restarted) when the config is changed.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, targetFilePath ...string) (context.Context, func(), error) {
	cctx, cancel := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cancel(err)
		return nil, nil, err
	}

	for _, f := range targetFilePath {
		if err = w.Add(f); err != nil {
			w.Close()
			cancel(err)
			return nil, nil, err
		}
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(fmt.Errorf("watching config: %w", err))
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
					continue
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op.String()))
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
