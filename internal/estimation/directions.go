package estimation

import "github.com/tacrodose/pkengine/pkg/models"

// diagonal is the per-axis magnitude of the diagonal steps, roughly 1/sqrt(2)
const diagonal = 0.7

// directions is the search pattern, clockwise from +eta_v. Ties are broken in
// favor of the lower index.
var directions = [8]models.Direction{
	{K: 0, V: 1},
	{K: diagonal, V: diagonal},
	{K: 1, V: 0},
	{K: diagonal, V: -diagonal},
	{K: 0, V: -1},
	{K: -diagonal, V: -diagonal},
	{K: -1, V: 0},
	{K: -diagonal, V: diagonal},
}

// Directions returns a copy of the fixed search pattern
func Directions() [8]models.Direction {
	return directions
}
