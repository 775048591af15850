// Package retention prunes the request log.
//
// Two limits apply, in order: records older than RetentionDays are deleted,
// then the oldest records beyond MaxRecords. Either limit is disabled by a
// zero value. Records can be archived to JSON before deletion.
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 30,
//	    PruneSchedule: "0 3 * * *",
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pruner.Stop()
package retention
