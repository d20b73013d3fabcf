package kdtree

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func bruteKNearest(points [][3]float32, query [3]float32, radius float64, k int) []Neighbour {
	var all []Neighbour
	r2 := radius * radius
	for i, p := range points {
		d2 := dist2(p, query)
		if d2 <= r2 {
			all = append(all, Neighbour{Index: i, Distance: math.Sqrt(d2)})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].Index < all[j].Index
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

func TestKNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points := make([][3]float32, 500)
	for i := range points {
		points[i] = [3]float32{
			float32(rng.Float64() * 10),
			float32(rng.Float64() * 10),
			float32(rng.Float64() * 10),
		}
	}
	tree := Build(points)

	for trial := 0; trial < 20; trial++ {
		q := [3]float32{float32(rng.Float64() * 10), float32(rng.Float64() * 10), float32(rng.Float64() * 10)}
		k := 1 + rng.Intn(10)
		radius := 1.0 + rng.Float64()*5

		got := tree.KNearest(q, radius, k)
		want := bruteKNearest(points, q, radius, k)

		if len(got) != len(want) {
			t.Fatalf("trial %d: got %d neighbours, want %d", trial, len(got), len(want))
		}
		for i := range got {
			if got[i].Index != want[i].Index {
				t.Fatalf("trial %d: neighbour %d = %+v, want %+v", trial, i, got[i], want[i])
			}
		}
		for i := 1; i < len(got); i++ {
			if got[i].Distance < got[i-1].Distance {
				t.Fatalf("trial %d: distances not monotone non-decreasing: %v", trial, got)
			}
		}
	}
}

func TestKNearestCapsAtK(t *testing.T) {
	points := make([][3]float32, 100)
	for i := range points {
		points[i] = [3]float32{float32(i), 0, 0}
	}
	tree := Build(points)
	got := tree.KNearest([3]float32{0, 0, 0}, 1000, 5)
	if len(got) != 5 {
		t.Fatalf("expected exactly 5 neighbours, got %d", len(got))
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	points := [][3]float32{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}, {3, 3, 3}, {-1, -1, -1}}
	tree := Build(points)
	blob := tree.Serialize()
	tree2 := Deserialize(points, blob)

	q := [3]float32{0.5, 0.5, 0.5}
	a := tree.KNearest(q, 100, 3)
	b := tree2.KNearest(q, 100, 3)
	if len(a) != len(b) {
		t.Fatalf("length mismatch after round trip: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Index != b[i].Index {
			t.Fatalf("index mismatch at %d: %d vs %d", i, a[i].Index, b[i].Index)
		}
	}
}

func TestNearLineFindsPointsOnSegment(t *testing.T) {
	points := [][3]float32{{0, 0, 0}, {5, 0, 0}, {10, 0, 0}, {0, 100, 0}}
	tree := Build(points)
	got := tree.NearLine([3]float32{0, 0, 0}, [3]float32{10, 0, 0}, 0.5, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 points near the segment, got %d: %+v", len(got), got)
	}
}
