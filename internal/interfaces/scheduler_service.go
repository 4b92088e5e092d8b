package interfaces

// SchedulerService drives the recurring scrape producers and the rescrape
// sweep. Each recurring cycle re-arms itself after completion, so a stuck
// cycle delays but never permanently halts subsequent cycles.
type SchedulerService interface {
	Start() error
	Stop() error
}
