package h3mapper

import (
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/hazard-aggregator/internal/mapper"
)

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

// Origin returns the cell containing (lat, lon) at res.
func (m *Mapper) Origin(lat, lon float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("coordinates out of range: %g,%g", lat, lon)
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 latlng to cell: %w", err)
	}
	return c.String(), nil
}

// ToParent walks cell up to parentRes. Asking for the cell's own resolution
// returns it unchanged.
func (m *Mapper) ToParent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parseCell(cell)
	if err != nil {
		return "", err
	}
	switch r := c.Resolution(); {
	case parentRes > r:
		return "", fmt.Errorf("cell %s is at res %d, finer parent %d requested", cell, r, parentRes)
	case parentRes == r:
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

func parseCell(s string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parse cell %q: %w", s, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", s)
	}
	return c, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
