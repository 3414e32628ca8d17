package tree

import (
	"taskline/internal/domain"
)

// MaxDepth caps every recursive traversal. The repository enforces
// acyclicity at write time, so a deeper walk means the stored hierarchy is
// corrupt, not that the data is merely large.
const MaxDepth = 512

// Node is a task plus its children. Children hold traversal references only;
// rows stay owned by the repository.
type Node struct {
	Task     domain.Task
	Children []*Node
}

// Forest is the derived hierarchy over one scope of task rows. It is rebuilt
// on every read that needs structure and never persisted.
type Forest struct {
	Roots []*Node
	index map[int64]*Node
}

// Build assembles a forest from flat rows. First pass indexes nodes by id,
// second pass attaches each node to its parent when the parent is inside the
// supplied scope; a dangling parent makes the node a root. Sibling order
// preserves input order.
func Build(tasks []domain.Task) *Forest {
	f := &Forest{index: make(map[int64]*Node, len(tasks))}
	for _, t := range tasks {
		f.index[t.ID] = &Node{Task: t}
	}
	for _, t := range tasks {
		n := f.index[t.ID]
		if t.ParentID != nil {
			if parent, ok := f.index[*t.ParentID]; ok && parent != n {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		f.Roots = append(f.Roots, n)
	}
	return f
}

// Node returns the node for id, or nil when id is outside the forest.
func (f *Forest) Node(id int64) *Node {
	return f.index[id]
}

// Size returns the number of nodes in the forest.
func (f *Forest) Size() int {
	return len(f.index)
}

// Walk visits every node reachable from the roots, depth-first, parents
// before children. It returns ErrCorruptHierarchy when the depth cap is hit
// or when nodes are unreachable from any root, which only happens when the
// stored rows contain a cycle.
func (f *Forest) Walk(fn func(n *Node, depth int) error) error {
	visited := 0
	var walk func(n *Node, depth int) error
	walk = func(n *Node, depth int) error {
		if depth > MaxDepth {
			return domain.CorruptHierarchy(n.Task.ID)
		}
		visited++
		if err := fn(n, depth); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range f.Roots {
		if err := walk(r, 0); err != nil {
			return err
		}
	}
	if visited < len(f.index) {
		for id, n := range f.index {
			if !reachable(f.Roots, n) {
				return domain.CorruptHierarchy(id)
			}
		}
	}
	return nil
}

func reachable(roots []*Node, target *Node) bool {
	stack := append([]*Node(nil), roots...)
	seen := map[*Node]bool{}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		if n == target {
			return true
		}
		stack = append(stack, n.Children...)
	}
	return false
}

// Validate walks the whole forest and reports ErrCorruptHierarchy if any
// cycle is present.
func (f *Forest) Validate() error {
	return f.Walk(func(*Node, int) error { return nil })
}

// Progress returns completion in [0,1]. A leaf counts 1.0 when done and 0.0
// otherwise; a node with children averages its direct children so subtrees
// weigh evenly regardless of depth.
func Progress(n *Node) (float64, error) {
	return progress(n, 0)
}

func progress(n *Node, depth int) (float64, error) {
	if depth > MaxDepth {
		return 0, domain.CorruptHierarchy(n.Task.ID)
	}
	if len(n.Children) == 0 {
		if n.Task.Status == domain.StatusDone {
			return 1.0, nil
		}
		return 0.0, nil
	}
	var sum float64
	for _, c := range n.Children {
		p, err := progress(c, depth+1)
		if err != nil {
			return 0, err
		}
		sum += p
	}
	return sum / float64(len(n.Children)), nil
}

// Flatten returns the forest's tasks in depth-first order, each paired with
// its depth. Formatters use it to indent tree views.
func (f *Forest) Flatten() ([]Row, error) {
	var rows []Row
	err := f.Walk(func(n *Node, depth int) error {
		rows = append(rows, Row{Node: n, Depth: depth})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Row is a node with its depth in the forest.
type Row struct {
	Node  *Node
	Depth int
}
