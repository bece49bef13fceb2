// Package mapper buckets coordinates into H3 areas.
package mapper

type Interface interface {
	Origin(lat, lon float64, res int) (string, error)
	ToParent(cell string, parentRes int) (string, error)
}

// Areas returns the cell holding (lat, lon) at res followed by its parent
// one level up, when res allows one. Request heat is tracked on both.
func Areas(m Interface, lat, lon float64, res int) ([]string, error) {
	cell, err := m.Origin(lat, lon, res)
	if err != nil {
		return nil, err
	}
	out := []string{cell}
	if res > 0 {
		if p, err := m.ToParent(cell, res-1); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}
