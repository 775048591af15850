// Package requestlog records a trace of every request the gateway serves and
// computes the admin dashboard from it.
//
// # Architecture
//
//  1. Record - filled in by pipeline stages while a request runs
//  2. Recorder - hands finished records to storage on a background worker
//  3. Storage - memory, SQLite or PostgreSQL backends
//  4. Retention - prunes old records on a cron schedule
//  5. Dashboard - overview, paged traces and per-route statistics
//
// Admin paths (those starting with "/_") are never recorded.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/requests.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	rec.Record(ctx, ex.Trace)
//
//	dash := requestlog.NewDashboard(store, table.Len)
//	home, err := dash.Home(ctx, time.Now())
package requestlog
