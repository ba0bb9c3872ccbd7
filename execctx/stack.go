package execctx

// stack is an immutable singly linked list. Push and pop return new stacks that
// share their tail with the receiver, so a stack value can never be changed by
// an operation on another value.
type stack[T any] struct {
	head *node[T]
	size int
}

type node[T any] struct {
	value T
	next  *node[T]
}

func (s stack[T]) push(v T) stack[T] {
	return stack[T]{head: &node[T]{value: v, next: s.head}, size: s.size + 1}
}

func (s stack[T]) pop() stack[T] {
	if s.head == nil {
		return s
	}
	return stack[T]{head: s.head.next, size: s.size - 1}
}

func (s stack[T]) peek() (T, bool) {
	if s.head == nil {
		var zero T
		return zero, false
	}
	return s.head.value, true
}

func (s stack[T]) empty() bool {
	return s.head == nil
}

// items returns the values most recent first
func (s stack[T]) items() []T {
	out := make([]T, 0, s.size)
	for n := s.head; n != nil; n = n.next {
		out = append(out, n.value)
	}
	return out
}
