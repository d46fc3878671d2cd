// Package search turns the landing page form into a results URL. Only fields
// that differ from their defaults end up in the query string.
package search

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPrice = 5000
	MinPrice     = 0
	MaxPrice     = 30000
	PriceStep    = 1000

	ResultsPath = "/results"
)

var ErrInvalidFilter = errors.New("invalid filter")

type Option struct {
	Value string
	Label string
}

// Option lists as offered by the form; the empty value means "Any".
var (
	Countries = []Option{
		{"", "Any"},
		{"germany", "Germany"},
		{"france", "France"},
		{"netherlands", "Netherlands"},
		{"sweden", "Sweden"},
	}
	Durations = []Option{
		{"", "Any"},
		{"1-semester", "1 Semester"},
		{"1-year", "1 Year"},
		{"2-years", "2 Years"},
	}
	Fields = []Option{
		{"", "Any"},
		{"engineering", "Engineering"},
		{"business", "Business"},
		{"science", "Science"},
		{"arts", "Arts"},
	}
)

type Filters struct {
	Query    string
	Price    int
	Country  string
	Duration string
	Field    string
}

func Defaults() Filters {
	return Filters{Price: DefaultPrice}
}

func (f Filters) HasActiveFilters() bool {
	return f.Price != DefaultPrice || f.Country != "" || f.Duration != "" || f.Field != ""
}

// Enabled reports whether the form has anything worth searching for.
func (f Filters) Enabled() bool {
	return strings.TrimSpace(f.Query) != "" || f.HasActiveFilters()
}

// Encode writes the non-default fields as q, price, country, duration, field.
func (f Filters) Encode() string {
	var b strings.Builder
	add := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	if f.Query != "" {
		add("q", f.Query)
	}
	if f.Price != DefaultPrice {
		add("price", strconv.Itoa(f.Price))
	}
	if f.Country != "" {
		add("country", f.Country)
	}
	if f.Duration != "" {
		add("duration", f.Duration)
	}
	if f.Field != "" {
		add("field", f.Field)
	}
	return b.String()
}

func (f Filters) ResultsURL() string {
	if q := f.Encode(); q != "" {
		return ResultsPath + "?" + q
	}
	return ResultsPath
}

// Parse reads filters from form or query values. Missing keys keep their
// defaults.
func Parse(v url.Values) (Filters, error) {
	f := Defaults()
	f.Query = v.Get("q")

	if raw := strings.TrimSpace(v.Get("price")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: price %q is not a number", ErrInvalidFilter, raw)
		}
		if p < MinPrice || p > MaxPrice || p%PriceStep != 0 {
			return Filters{}, fmt.Errorf("%w: price %d outside %d..%d in steps of %d", ErrInvalidFilter, p, MinPrice, MaxPrice, PriceStep)
		}
		f.Price = p
	}

	var err error
	if f.Country, err = pick("country", v.Get("country"), Countries); err != nil {
		return Filters{}, err
	}
	if f.Duration, err = pick("duration", v.Get("duration"), Durations); err != nil {
		return Filters{}, err
	}
	if f.Field, err = pick("field", v.Get("field"), Fields); err != nil {
		return Filters{}, err
	}
	return f, nil
}

// Unvalidated copies the submitted values as they are, so a rejected form can
// be shown again with the visitor's input. A price that is not a number falls
// back to the default.
func Unvalidated(v url.Values) Filters {
	f := Filters{
		Query:    v.Get("q"),
		Price:    DefaultPrice,
		Country:  v.Get("country"),
		Duration: v.Get("duration"),
		Field:    v.Get("field"),
	}
	if p, err := strconv.Atoi(strings.TrimSpace(v.Get("price"))); err == nil {
		f.Price = p
	}
	return f
}

func pick(name, value string, opts []Option) (string, error) {
	for _, o := range opts {
		if o.Value == value {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: unknown %s %q", ErrInvalidFilter, name, value)
}

// Label returns the display label for value, or value itself when unknown.
func Label(opts []Option, value string) string {
	for _, o := range opts {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}
