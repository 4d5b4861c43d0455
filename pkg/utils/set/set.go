package set

import "sort"

// Ordered is a type constraint that matches any ordered type.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 |
		~string
}

// Set is an insertion-deduplicated collection whose Slice is sorted.
type Set[T Ordered] struct {
	elems []T
	maps  map[T]struct{}
}

func NewSet[T Ordered](vals ...T) *Set[T] {
	s := &Set[T]{
		elems: []T{},
		maps:  map[T]struct{}{},
	}
	s.Append(vals...)
	return s
}

func (s *Set[T]) Append(vals ...T) *Set[T] {
	for _, val := range vals {
		if _, ok := s.maps[val]; ok {
			continue
		}
		s.elems = append(s.elems, val)
		s.maps[val] = struct{}{}
	}
	return s
}

func (s *Set[T]) Has(val T) bool {
	_, ok := s.maps[val]
	return ok
}

func (s *Set[T]) Slice() []T {
	sort.Slice(s.elems, func(i, j int) bool {
		return s.elems[i] < s.elems[j]
	})
	return s.elems
}

func (s *Set[T]) Len() int {
	return len(s.elems)
}
