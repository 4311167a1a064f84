// Package cli implements funnelctl, the operator command line for a running
// funnel-server. Every command calls the admin API with a bearer token.
//
// # Commands
//
// aggregate: aggregate one day and report the alerts it fired
//
//	funnelctl aggregate --date 2025-03-14
//
// trends: print the trend report
//
//	funnelctl trends --days 14
//	funnelctl trends --json
//
// export: download stored summaries
//
//	funnelctl export --start 2025-03-01 --end 2025-03-14 --format csv --out march.csv
//
// backfill: aggregate a range of days, four at a time by default
//
//	funnelctl backfill --start 2025-01-01 --end 2025-03-14 --workers 8
//
// # Connection
//
// --server defaults to FUNNEL_SERVER_URL (http://localhost:8080) and --token
// to FUNNEL_ADMIN_TOKEN. -v logs every API call to stderr.
package cli
