// Package hotness tracks how often each query area is requested.
package hotness

type Interface interface {
	Inc(area string)
	Score(area string) float64
	Reset(areas ...string)
}
