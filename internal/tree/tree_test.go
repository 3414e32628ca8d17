package tree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
	"taskline/internal/tree"
)

func task(id int64, parent *int64, status string) domain.Task {
	return domain.Task{ID: id, Title: "t", ParentID: parent, Status: status, Priority: domain.PriorityMedium}
}

func ptr(v int64) *int64 { return &v }

func TestBuildForest(t *testing.T) {
	rows := []domain.Task{
		task(1, nil, domain.StatusPending),
		task(2, ptr(1), domain.StatusPending),
		task(3, ptr(1), domain.StatusPending),
		task(4, ptr(2), domain.StatusPending),
		task(5, nil, domain.StatusPending),
	}
	f := tree.Build(rows)
	require.Len(t, f.Roots, 2)
	assert.Equal(t, int64(1), f.Roots[0].Task.ID)
	assert.Equal(t, int64(5), f.Roots[1].Task.ID)
	require.NotNil(t, f.Node(2))
	assert.Len(t, f.Node(1).Children, 2)
	assert.Len(t, f.Node(2).Children, 1)
	assert.Equal(t, 5, f.Size())
	assert.NoError(t, f.Validate())
}

func TestBuildDanglingParentBecomesRoot(t *testing.T) {
	// parent 99 is outside the scope, e.g. filtered out upstream
	rows := []domain.Task{
		task(1, ptr(99), domain.StatusPending),
		task(2, ptr(1), domain.StatusPending),
	}
	f := tree.Build(rows)
	require.Len(t, f.Roots, 1)
	assert.Equal(t, int64(1), f.Roots[0].Task.ID)
	assert.Len(t, f.Roots[0].Children, 1)
}

func TestBuildSiblingOrderPreserved(t *testing.T) {
	rows := []domain.Task{
		task(10, nil, domain.StatusPending),
		task(3, ptr(10), domain.StatusPending),
		task(1, ptr(10), domain.StatusPending),
		task(2, ptr(10), domain.StatusPending),
	}
	f := tree.Build(rows)
	require.Len(t, f.Roots, 1)
	var ids []int64
	for _, c := range f.Roots[0].Children {
		ids = append(ids, c.Task.ID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
}

func TestValidateDetectsCycle(t *testing.T) {
	// two rows pointing at each other can only come from corrupt storage
	rows := []domain.Task{
		task(1, ptr(2), domain.StatusPending),
		task(2, ptr(1), domain.StatusPending),
	}
	f := tree.Build(rows)
	assert.Empty(t, f.Roots)
	err := f.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCorruptHierarchy)
}

func TestSelfParentBecomesRoot(t *testing.T) {
	rows := []domain.Task{task(1, ptr(1), domain.StatusPending)}
	f := tree.Build(rows)
	require.Len(t, f.Roots, 1)
	assert.NoError(t, f.Validate())
}

func TestProgressLeaf(t *testing.T) {
	f := tree.Build([]domain.Task{task(1, nil, domain.StatusDone)})
	p, err := tree.Progress(f.Node(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	f = tree.Build([]domain.Task{task(1, nil, domain.StatusInProgress)})
	p, err = tree.Progress(f.Node(1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
}

func TestProgressAveragesDirectChildren(t *testing.T) {
	// root -> (a -> done leaf, b pending leaf): a is 1.0, b is 0, root 0.5
	rows := []domain.Task{
		task(1, nil, domain.StatusPending),
		task(2, ptr(1), domain.StatusPending),
		task(3, ptr(2), domain.StatusDone),
		task(4, ptr(1), domain.StatusPending),
	}
	f := tree.Build(rows)
	p, err := tree.Progress(f.Node(1))
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)
}

func TestProgressAllDescendantsDone(t *testing.T) {
	rows := []domain.Task{
		task(1, nil, domain.StatusPending),
		task(2, ptr(1), domain.StatusDone),
		task(3, ptr(2), domain.StatusDone),
		task(4, ptr(1), domain.StatusDone),
	}
	f := tree.Build(rows)
	p, err := tree.Progress(f.Node(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}

func TestFlattenDepths(t *testing.T) {
	rows := []domain.Task{
		task(1, nil, domain.StatusPending),
		task(2, ptr(1), domain.StatusPending),
		task(3, ptr(2), domain.StatusPending),
		task(4, nil, domain.StatusPending),
	}
	f := tree.Build(rows)
	flat, err := f.Flatten()
	require.NoError(t, err)
	require.Len(t, flat, 4)
	var got [][2]int64
	for _, r := range flat {
		got = append(got, [2]int64{r.Node.Task.ID, int64(r.Depth)})
	}
	assert.Equal(t, [][2]int64{{1, 0}, {2, 1}, {3, 2}, {4, 0}}, got)
}
