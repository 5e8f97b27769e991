// Package runlog keeps a history of loader runs in Redis.
//
// Every pipeline run produces a Record: what was searched, how many
// businesses the API declared and how many were collected, whether
// pagination finished or stopped early, and how many rows reached the
// database. Records are stored under their run ID and indexed per search
// so the most recent runs for a term and location can be read back:
//
//	store := runlog.NewStore(redisClient, runlog.DefaultConfig())
//
//	rec := runlog.NewRecord("restaurant", "flushing")
//	// ... run the pipeline, fill in rec ...
//	rec.Finish(time.Now())
//	if err := store.Save(ctx, rec); err != nil {
//		return err
//	}
//
//	latest, err := store.Latest(ctx, "restaurant", "flushing")
//	if errors.Is(err, runlog.ErrNotFound) {
//		// never run, or expired
//	}
//
// # Keys
//
// Keys are deterministic. Term and location are normalized (trimmed,
// lower-cased, inner whitespace collapsed) before being escaped into the
// key, so "Flushing, NY" and " flushing,  ny" share a history:
//
//	yelp:run:<id>                      one record (JSON)
//	yelp:runs:<term>:<location>        run IDs, newest first
//
// Both expire after Config.TTL. The index is trimmed to Config.History IDs.
//
// # Metrics
//
//   - yelp_runs_recorded_total{complete} - Records saved
//   - yelp_runlog_errors_total{operation} - Redis operation errors
package runlog
