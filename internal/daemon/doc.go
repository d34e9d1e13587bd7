// Package daemon provides watch mode for wiki-link: a recursive file system
// watcher and the loop that feeds its notifications to the mirror router.
//
// # Architecture
//
//   - FileWatcher: recursive file system event monitoring using fsnotify
//   - Source: the capability interface FileWatcher satisfies; tests substitute
//     a synthetic event source
//   - Daemon: owns one subscription and routes events serially until cancelled
//
// # Usage
//
//	fw, err := daemon.NewFileWatcher(daemon.DefaultEventBuffer, logger)
//	if err != nil {
//	    return err
//	}
//	defer fw.Close()
//
//	d, err := daemon.New(srcRoot, fw, router, crawler, &daemon.Config{
//	    ResyncOnOverflow: true,
//	    Logger:           logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return d.Run(ctx) // blocks until ctx is cancelled
//
// # Event Mapping
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Create → Created (directories also get a watch added, and their
//     existing contents are reported as Created)
//   - fsnotify.Write → Modified
//   - fsnotify.Remove → Deleted
//   - fsnotify.Rename → Moved (old path only; the new name arrives as Created)
//   - fsnotify.Chmod is ignored
//
// A removed or renamed path no longer exists, so whether it was a directory is
// answered from the set of watched directories.
//
// # Ordering and Backpressure
//
// Events are routed one at a time in delivery order. A slow conversion stalls
// delivery; pending notifications queue in the Events() buffer and then in the
// kernel. When the kernel queue overflows, ErrOverflow is delivered on Errors()
// and, with ResyncOnOverflow, the daemon runs a full bulk pass to repair the
// mirror.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Run stops the loop. The event being routed
// when cancellation arrives always completes, then the subscription is released:
//  1. Signal the event processing goroutine to exit
//  2. Close the underlying fsnotify watcher
//  3. Wait for the event loop to finish
//  4. Close the Events() and Errors() channels
package daemon
