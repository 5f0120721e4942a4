// Package retention prunes evidence records by age and by count.
//
// A Pruner deletes records older than RetentionDays and then the oldest
// records beyond MaxRecords. With ArchiveBeforeDelete set, the records are
// first written as JSON to ArchivePath. A Scheduler runs the pruner on a
// standard five-field cron expression:
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 30,
//	    PruneSchedule: "0 3 * * *",
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention
