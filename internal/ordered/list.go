// Package ordered keeps an explicitly ordered list of keyed items.
package ordered

import "fmt"

// List holds items in display order. Positions are derived, never stored.
type List[T any] struct {
	items []T
	key   func(T) string
}

// New copies items into a list keyed by key.
func New[T any](items []T, key func(T) string) *List[T] {
	cp := make([]T, len(items))
	copy(cp, items)
	return &List[T]{items: cp, key: key}
}

func (l *List[T]) Len() int { return len(l.items) }

// Items returns a copy in current order.
func (l *List[T]) Items() []T {
	cp := make([]T, len(l.items))
	copy(cp, l.items)
	return cp
}

// Index returns the position of key, or -1.
func (l *List[T]) Index(key string) int {
	for i, it := range l.items {
		if l.key(it) == key {
			return i
		}
	}
	return -1
}

// Append adds an item at the end.
func (l *List[T]) Append(it T) {
	l.items = append(l.items, it)
}

// Remove drops the item with key.
func (l *List[T]) Remove(key string) error {
	i := l.Index(key)
	if i < 0 {
		return fmt.Errorf("item %q not found", key)
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return nil
}

// MoveUp swaps the item with its predecessor. Moving the first item is a no-op.
func (l *List[T]) MoveUp(key string) error {
	i := l.Index(key)
	if i < 0 {
		return fmt.Errorf("item %q not found", key)
	}
	if i > 0 {
		l.items[i-1], l.items[i] = l.items[i], l.items[i-1]
	}
	return nil
}

// MoveDown swaps the item with its successor. Moving the last item is a no-op.
func (l *List[T]) MoveDown(key string) error {
	i := l.Index(key)
	if i < 0 {
		return fmt.Errorf("item %q not found", key)
	}
	if i < len(l.items)-1 {
		l.items[i+1], l.items[i] = l.items[i], l.items[i+1]
	}
	return nil
}

// MoveBefore places key immediately before target.
func (l *List[T]) MoveBefore(key, target string) error {
	return l.move(key, target, 0)
}

// MoveAfter places key immediately after target.
func (l *List[T]) MoveAfter(key, target string) error {
	return l.move(key, target, 1)
}

func (l *List[T]) move(key, target string, offset int) error {
	if key == target {
		return nil
	}
	from := l.Index(key)
	if from < 0 {
		return fmt.Errorf("item %q not found", key)
	}
	if l.Index(target) < 0 {
		return fmt.Errorf("item %q not found", target)
	}
	it := l.items[from]
	rest := append(append([]T{}, l.items[:from]...), l.items[from+1:]...)
	to := -1
	for i, other := range rest {
		if l.key(other) == target {
			to = i + offset
			break
		}
	}
	out := make([]T, 0, len(l.items))
	out = append(out, rest[:to]...)
	out = append(out, it)
	out = append(out, rest[to:]...)
	l.items = out
	return nil
}

// Renumber returns the items with 1-based positions assigned in a single pass.
func Renumber[T any](l *List[T], set func(T, int) T) []T {
	out := make([]T, len(l.items))
	for i, it := range l.items {
		out[i] = set(it, i+1)
	}
	return out
}
