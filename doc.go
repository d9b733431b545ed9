// Package taskport runs named, side-effecting tasks on behalf of a caller
// that communicates only through message channels.
//
// The caller sends batches of task definitions on an inbound channel. Each
// definition names a registered implementation, carries opaque arguments and
// is identified by an attempt ID and a task ID. Every definition runs on its
// own goroutine; results are correlated back by ID and delivered on an
// outbound channel in groups, debounced so that large batches produce few
// messages.
//
// # Quick Start
//
//	in := make(chan taskport.TaskBatch)
//	out := make(chan taskport.ResultBatch, 16)
//
//	runner, err := taskport.Register(ctx, taskport.Options{
//		Tasks: map[string]taskport.Implementation{
//			"double": taskport.Typed(func(ctx context.Context, x float64) (float64, error) {
//				return x * 2, nil
//			}),
//		},
//		Channels: taskport.Channels{Inbound: in, Outbound: out},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer runner.Stop()
//
//	in <- taskport.TaskBatch{{Function: "double", AttemptID: "a1", TaskID: "t1", Args: 5}}
//	results := <-out // results[0].Result.Value == 10.0
//
// # Key Concepts
//
// Registry: an immutable name to Implementation map built once per runner.
// Default builtins (sleep, timeNow, timeZoneOffset, timeZoneName, randomSeed,
// http) live under the reserved "builtin:" prefix and can be replaced with
// Options.BuiltinOverrides. Caller tasks win over both.
//
// Failures: an unregistered name yields reason "missing_function"; an
// implementation that returns an error or panics yields "js_exception".
// Implementations report domain failures (a refused connection, a missing
// key) inside their returned value, which is passed through untouched.
//
// Debouncing: results of batches with more than ten definitions are held
// until no new result arrived for 20ms, then flushed together. Results of
// smaller batches are flushed as soon as they complete.
//
// # Thread Safety
//
// Completions are funnelled through a SingleThreadTaskRunner that owns the
// result buffer, so buffering and flushing never race. A Runner can be used
// from any goroutine.
package taskport
