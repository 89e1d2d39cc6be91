// Package registry holds the closed catalogue of ingestion sources. The
// names and ids mirror the rows seeded by the schema migration; adapters
// are constructed lazily so a process only pays for the sources it runs.
package registry

import (
	"fmt"
	"sort"

	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/sources"
	"github.com/rinkdata/rink/internal/sources/htmlreport"
	"github.com/rinkdata/rink/internal/sources/nhlapi"
	"github.com/rinkdata/rink/internal/sources/scrape"
)

// Descriptor ties a catalogue row to its adapter factory.
type Descriptor struct {
	SourceID int16
	Type     domain.SourceType
	Factory  func(sources.Deps) (sources.Adapter, error)
}

// catalogue is closed: ids match the seeded data_sources rows and new
// sources require a migration.
var catalogue = map[string]Descriptor{
	nhlapi.SourceBoxscore:        {SourceID: 1, Type: domain.SourceTypeAPIJSON, Factory: nhlapi.NewBoxscore},
	nhlapi.SourcePlayByPlay:      {SourceID: 2, Type: domain.SourceTypeAPIJSON, Factory: nhlapi.NewPlayByPlay},
	nhlapi.SourceShifts:          {SourceID: 3, Type: domain.SourceTypeAPIJSON, Factory: nhlapi.NewShifts},
	nhlapi.SourceSchedule:        {SourceID: 4, Type: domain.SourceTypeAPIJSON, Factory: nhlapi.NewSchedule},
	nhlapi.SourceStandings:       {SourceID: 5, Type: domain.SourceTypeAPIJSON, Factory: nhlapi.NewStandings},
	nhlapi.SourceRoster:          {SourceID: 6, Type: domain.SourceTypeAPIJSON, Factory: nhlapi.NewRoster},
	nhlapi.SourcePlayerGameLog:   {SourceID: 7, Type: domain.SourceTypeAPIJSON, Factory: nhlapi.NewGameLog},
	htmlreport.SourceName:        {SourceID: 8, Type: domain.SourceTypeHTMLReport, Factory: htmlreport.New},
	scrape.SourceTeamLines:       {SourceID: 9, Type: domain.SourceTypeMixedScrape, Factory: scrape.NewLines},
	scrape.SourceTeamInjuries:    {SourceID: 10, Type: domain.SourceTypeMixedScrape, Factory: scrape.NewInjuries},
	scrape.SourceStartingGoalies: {SourceID: 11, Type: domain.SourceTypeMixedScrape, Factory: scrape.NewGoalies},
}

// ForName returns the descriptor for a source name.
func ForName(name string) (Descriptor, error) {
	d, ok := catalogue[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown source %q", name)
	}
	return d, nil
}

// New constructs the adapter for a source name.
func New(name string, deps sources.Deps) (sources.Adapter, error) {
	d, err := ForName(name)
	if err != nil {
		return nil, err
	}
	return d.Factory(deps)
}

// Names lists every registered source, sorted.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
