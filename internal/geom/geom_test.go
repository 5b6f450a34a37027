package geom

import (
	"image"
	"math"
	"testing"
)

const (
	eps = 0.00001
)

func TestDistanceTo(t *testing.T) {
	p1 := Point{X: 341, Y: 264}
	p2 := Point{X: 421, Y: 427}
	correctAnswer := 181.57367
	answer := p1.DistanceTo(p2)
	if math.Abs(answer-correctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correctAnswer)
	}
}

func TestIoU(t *testing.T) {
	cases := []struct {
		name string
		a    Rect
		b    Rect
		want float64
	}{
		{
			name: "identical",
			a:    NewRect(10, 20, 30, 40),
			b:    NewRect(10, 20, 30, 40),
			want: 1.0,
		},
		{
			name: "disjoint",
			a:    NewRect(0, 0, 10, 10),
			b:    NewRect(100, 100, 10, 10),
			want: 0.0,
		},
		{
			name: "half overlap",
			a:    NewRect(0, 0, 10, 10),
			b:    NewRect(5, 0, 10, 10),
			// intersection 50, union 150
			want: 50.0 / 150.0,
		},
		{
			name: "touching edges",
			a:    NewRect(0, 0, 10, 10),
			b:    NewRect(10, 0, 10, 10),
			want: 0.0,
		},
		{
			name: "contained",
			a:    NewRect(0, 0, 20, 20),
			b:    NewRect(5, 5, 10, 10),
			want: 100.0 / 400.0,
		},
	}
	for _, tc := range cases {
		got := tc.a.IoU(tc.b)
		if math.Abs(got-tc.want) > eps {
			t.Errorf("%s: IoU = %v, expected %v", tc.name, got, tc.want)
		}
		// IoU is symmetric
		rev := tc.b.IoU(tc.a)
		if math.Abs(got-rev) > eps {
			t.Errorf("%s: IoU not symmetric: %v vs %v", tc.name, got, rev)
		}
	}
}

func TestRectCenter(t *testing.T) {
	r := NewRect(10, 20, 30, 40)
	c := r.Center()
	if c.X != 25 || c.Y != 40 {
		t.Errorf("incorrect center: %v, expected {25 40}", c)
	}
}

func TestRectDiagonal(t *testing.T) {
	r := NewRect(0, 0, 3, 4)
	if math.Abs(r.Diagonal()-5.0) > eps {
		t.Errorf("incorrect diagonal: %v, expected 5", r.Diagonal())
	}
}

func TestRectImageRoundTrip(t *testing.T) {
	src := image.Rect(10, 20, 40, 60)
	r := NewRectFrom(src)
	if r.X != 10 || r.Y != 20 || r.Width != 30 || r.Height != 40 {
		t.Errorf("incorrect conversion from image.Rectangle: %+v", r)
	}
	back := r.ToImageRect()
	if back != src {
		t.Errorf("round trip mismatch: %v, expected %v", back, src)
	}
}
