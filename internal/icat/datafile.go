package icat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Datafile is the part of an ICAT Datafile entity the resolver needs.
type Datafile struct {
	Name               string
	Location           string
	InvestigationName  string
	InvestigationTitle string
}

// entity layouts as returned by the entity manager with INCLUDE.
type investigationEntity struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

type datasetEntity struct {
	Investigation *investigationEntity `json:"investigation"`
}

type datafileEntity struct {
	Name     string         `json:"name"`
	Location string         `json:"location"`
	Dataset  *datasetEntity `json:"dataset"`
}

// DatafileQuery builds the lookup of a data file by exact name, including its
// dataset and investigation.
func DatafileQuery(fileName string) string {
	quoted := strings.ReplaceAll(fileName, "'", "''")
	return fmt.Sprintf("SELECT df FROM Datafile df WHERE df.name = '%s' INCLUDE df.dataset AS ds, ds.investigation", quoted)
}

// FindDatafile looks a data file up by name. It returns (nil, nil) when ICAT
// has no such file.
func (c *Client) FindDatafile(ctx context.Context, fileName string) (*Datafile, error) {
	items, err := c.Query(ctx, DatafileQuery(fileName))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Datafile *datafileEntity `json:"Datafile"`
	}
	if err := json.Unmarshal(items[0], &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode datafile %s: %w", fileName, err)
	}
	if wrapped.Datafile == nil {
		return nil, fmt.Errorf("unexpected icat result for %s: %s", fileName, string(items[0]))
	}

	df := &Datafile{
		Name:     wrapped.Datafile.Name,
		Location: wrapped.Datafile.Location,
	}
	if ds := wrapped.Datafile.Dataset; ds != nil && ds.Investigation != nil {
		df.InvestigationName = ds.Investigation.Name
		df.InvestigationTitle = ds.Investigation.Title
	}
	return df, nil
}
