// Package similarity compares spatial feature vectors of saved representations.
//
// A representation is a [steps, n, n, m] buffer: for every denoising step an
// n x n grid of m-dimensional feature vectors.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrUnknownFunc  = errors.New("similarity: unknown function")
	ErrInvalidQuery = errors.New("similarity: invalid query")
	ErrShape        = errors.New("similarity: buffer does not match grid")
)

// Func names a similarity or distance function.
type Func string

const (
	Cosine    Func = "cosine"
	Euclidean Func = "euclidean"
	Manhattan Func = "manhattan"
	Chebyshev Func = "chebyshev"
)

// Funcs lists the supported functions.
func Funcs() []Func {
	return []Func{Cosine, Euclidean, Manhattan, Chebyshev}
}

// ParseFunc parses a function name, case-insensitively.
func ParseFunc(s string) (Func, error) {
	f := Func(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Funcs() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFunc, s)
}

// IsDistance reports whether f yields distances that Map normalises.
func (f Func) IsDistance() bool {
	return f == Euclidean || f == Manhattan || f == Chebyshev
}

// Compare applies f to two vectors of equal length.
func (f Func) Compare(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector lengths %d and %d", ErrShape, len(a), len(b))
	}
	switch f {
	case Cosine:
		return CosineSimilarity(a, b), nil
	case Euclidean:
		return floats.Distance(a, b, 2), nil
	case Manhattan:
		return floats.Distance(a, b, 1), nil
	case Chebyshev:
		return floats.Distance(a, b, math.Inf(1)), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFunc, string(f))
	}
}

// CosineSimilarity returns a.b / (|a| |b|), or 0 when either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Normalize maps distances in place to similarities 1 - d/max(d).
// When every distance is zero all similarities are 1.
func Normalize(d []float64) {
	if len(d) == 0 {
		return
	}
	maxD := floats.Max(d)
	if maxD == 0 {
		for i := range d {
			d[i] = 1
		}
		return
	}
	floats.Scale(-1/maxD, d)
	floats.AddConst(1, d)
}

// Query selects the base vector and the grid geometry for Map.
type Query struct {
	Step1, Step2 int // step index into the first and second representation
	Row, Col     int // base vector position in the first representation
	N            int // grid edge length
	M            int // feature dimension
}

func (q Query) validate() error {
	switch {
	case q.N <= 0 || q.M <= 0:
		return fmt.Errorf("%w: grid %dx%dx%d", ErrInvalidQuery, q.N, q.N, q.M)
	case q.Row < 0 || q.Row >= q.N || q.Col < 0 || q.Col >= q.N:
		return fmt.Errorf("%w: row %d col %d outside %dx%d grid", ErrInvalidQuery, q.Row, q.Col, q.N, q.N)
	case q.Step1 < 0 || q.Step2 < 0:
		return fmt.Errorf("%w: negative step", ErrInvalidQuery)
	}
	return nil
}

// grid is a [steps, n, n, m] view over a flat buffer.
type grid struct {
	data  []float32
	steps int
	n, m  int
}

func newGrid(data []float32, n, m int) (grid, error) {
	plane := n * n * m
	if len(data) == 0 || len(data)%plane != 0 {
		return grid{}, fmt.Errorf("%w: %d values for %dx%dx%d grid", ErrShape, len(data), n, n, m)
	}
	return grid{data: data, steps: len(data) / plane, n: n, m: m}, nil
}

// vector copies the feature vector at [step, row, col, :] into dst.
func (g grid) vector(dst []float64, step, row, col int) {
	off := ((step*g.n+row)*g.n + col) * g.m
	for k := range dst {
		dst[k] = float64(g.data[off+k])
	}
}

// Map compares the vector a[Step1, Row, Col, :] with every b[Step2, i, j, :].
// The result has N*N entries ordered column-major: index j*N + i. Distance
// functions are normalised with Normalize, so every result is a similarity.
func Map(f Func, a, b []float32, q Query) ([]float64, error) {
	if !f.IsDistance() && f != Cosine {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunc, string(f))
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	ga, err := newGrid(a, q.N, q.M)
	if err != nil {
		return nil, fmt.Errorf("first: %w", err)
	}
	gb, err := newGrid(b, q.N, q.M)
	if err != nil {
		return nil, fmt.Errorf("second: %w", err)
	}
	if q.Step1 >= ga.steps || q.Step2 >= gb.steps {
		return nil, fmt.Errorf("%w: steps %d/%d, have %d/%d", ErrInvalidQuery, q.Step1, q.Step2, ga.steps, gb.steps)
	}

	base := make([]float64, q.M)
	ga.vector(base, q.Step1, q.Row, q.Col)
	other := make([]float64, q.M)

	out := make([]float64, 0, q.N*q.N)
	for j := 0; j < q.N; j++ {
		for i := 0; i < q.N; i++ {
			gb.vector(other, q.Step2, i, j)
			v, err := f.Compare(base, other)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	if f.IsDistance() {
		Normalize(out)
	}
	return out, nil
}
