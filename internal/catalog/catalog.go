package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/varsilias/scholar-search/internal/search"
)

type Scholarship struct {
	Name     string `yaml:"name" json:"name"`
	Amount   string `yaml:"amount" json:"amount"`
	Deadline string `yaml:"deadline" json:"deadline"`
}

type University struct {
	ID           int           `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Country      string        `yaml:"country" json:"country"`
	Description  string        `yaml:"description" json:"description"`
	Website      string        `yaml:"website" json:"website"`
	Scholarships []Scholarship `yaml:"scholarships" json:"scholarships"`
}

// Catalog serves a fixed list of universities. Filters are accepted but not
// applied: every search returns the whole list.
type Catalog struct {
	universities []University
	latency      time.Duration
}

//go:embed universities.yaml
var defaultUniversities []byte

func Default(latency time.Duration) *Catalog {
	c, err := Load(bytes.NewReader(defaultUniversities), latency)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded universities: %v", err))
	}
	return c
}

func Load(r io.Reader, latency time.Duration) (*Catalog, error) {
	var us []University
	if err := yaml.NewDecoder(r).Decode(&us); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode universities: %w", err)
	}
	seen := make(map[int]bool, len(us))
	for _, u := range us {
		if u.Name == "" {
			return nil, fmt.Errorf("university %d: name is required", u.ID)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("duplicate university id %d", u.ID)
		}
		seen[u.ID] = true
	}
	return &Catalog{universities: us, latency: latency}, nil
}

// List waits for the simulated latency, then returns a deep copy of the
// catalogue.
func (c *Catalog) List(ctx context.Context, _ search.Filters) ([]University, error) {
	if c.latency > 0 {
		t := time.NewTimer(c.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	out := make([]University, len(c.universities))
	for i, u := range c.universities {
		u.Scholarships = append([]Scholarship(nil), u.Scholarships...)
		out[i] = u
	}
	return out, nil
}
