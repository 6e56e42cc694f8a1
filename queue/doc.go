// Package queue hands importer records to ingest workers through Redis.
//
// Importers push records onto a Redis list; a Worker pops them one at a
// time, runs them through an ingest pipeline and publishes a Result per
// record. One worker per queue keeps the single-writer model of the
// pipeline; add a lock.Etcd locker before running several.
//
// # Redis Key Schema
//
//   - <queue>            List of items (LPUSH by producers, BRPOP by workers)
//   - results:<jobID>    Pub/Sub channel receiving one Result per item
//
// # Usage
//
// Submitting a batch:
//
//	client, err := queue.NewRedisClient(ctx, queue.RedisOptions{URL: "redis://localhost:6379"})
//	if err != nil {
//		return err
//	}
//	jobID, err := queue.Submit(ctx, client, queue.DefaultQueue, records)
//
// Collecting results:
//
//	results, err := client.Subscribe(ctx, queue.ResultChannel(jobID))
//	for r := range results {
//		if !r.IsSuccess() {
//			log.Printf("record %d failed: %s", r.Index, r.Error)
//		}
//	}
//
// Running a worker:
//
//	w := queue.NewWorker(client, pipeline, queue.WithLogger(logger))
//	err = w.Run(ctx)
//
// Trace context travels with each item, so worker spans join the
// submitter's trace.
package queue
