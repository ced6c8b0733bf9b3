package ml

import (
	"math"
	"math/rand"
	"sort"
)

const leafFeature = -1

// Node is one entry of a flattened binary decision tree. Leaves carry the
// weighted class distribution of the training samples that reached them.
type Node struct {
	Feature   int        `json:"f"`
	Threshold float64    `json:"t,omitempty"`
	Left      int32      `json:"l,omitempty"`
	Right     int32      `json:"r,omitempty"`
	Value     [2]float64 `json:"v"`
}

// IsLeaf reports whether n terminates a path.
func (n *Node) IsLeaf() bool {
	return n.Feature == leafFeature
}

// Tree is a CART classifier over two classes.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Proba walks row to its leaf and returns the class distribution.
func (t *Tree) Proba(row []float64) [2]float64 {
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder grows one tree on a bootstrap sample. counts[i] is how many
// times sample i was drawn.
type treeBuilder struct {
	x           [][]float64
	y           []int
	counts      []float64
	maxFeatures int
	rng         *rand.Rand
	nodes       []Node
	importances []float64
}

func gini(c0, c1 float64) float64 {
	n := c0 + c1
	if n == 0 {
		return 0
	}
	p0, p1 := c0/n, c1/n

	return 1 - p0*p0 - p1*p1
}

func (b *treeBuilder) classCounts(idx []int) (float64, float64) {
	var c0, c1 float64
	for _, i := range idx {
		if b.y[i] == 1 {
			c1 += b.counts[i]
		} else {
			c0 += b.counts[i]
		}
	}

	return c0, c1
}

func (b *treeBuilder) leaf(c0, c1 float64) int32 {
	n := c0 + c1
	node := Node{Feature: leafFeature}
	if n > 0 {
		node.Value = [2]float64{c0 / n, c1 / n}
	}
	b.nodes = append(b.nodes, node)

	return int32(len(b.nodes) - 1)
}

type split struct {
	feature   int
	threshold float64
	left      []int
	right     []int
	decrease  float64
}

// bestSplit draws features in random order and evaluates them until
// maxFeatures non-constant ones were seen, like sklearn's "sqrt" policy.
func (b *treeBuilder) bestSplit(idx []int, c0, c1 float64) (split, bool) {
	parentImpurity := gini(c0, c1)
	nNode := c0 + c1

	best := split{feature: leafFeature, decrease: 0}
	bestProxy := math.Inf(-1)

	features := b.rng.Perm(len(b.x[0]))
	visited := 0

	sorted := make([]int, len(idx))
	for _, f := range features {
		if visited >= b.maxFeatures {
			break
		}

		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		if b.x[sorted[0]][f] == b.x[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		var l0, l1 float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			if b.y[i] == 1 {
				l1 += b.counts[i]
			} else {
				l0 += b.counts[i]
			}

			cur, next := b.x[i][f], b.x[sorted[k+1]][f]
			if cur == next {
				continue
			}

			nl := l0 + l1
			nr := nNode - nl
			// Weighted child impurity, negated: larger is better.
			proxy := -(nl*gini(l0, l1) + nr*gini(c0-l0, c1-l1))
			if proxy > bestProxy {
				bestProxy = proxy
				threshold := cur/2 + next/2
				if threshold == next || math.IsInf(threshold, 0) {
					threshold = cur
				}
				best.feature = f
				best.threshold = threshold
				best.decrease = parentImpurity - (-proxy)/nNode
			}
		}
	}

	if best.feature == leafFeature {
		return best, false
	}

	for _, i := range idx {
		if b.x[i][best.feature] <= best.threshold {
			best.left = append(best.left, i)
		} else {
			best.right = append(best.right, i)
		}
	}

	return best, true
}

// grow builds the subtree for idx and returns its node index. Nodes split
// until they are pure or hold fewer than two weighted samples.
func (b *treeBuilder) grow(idx []int) int32 {
	c0, c1 := b.classCounts(idx)
	if c0 == 0 || c1 == 0 || c0+c1 < 2 {
		return b.leaf(c0, c1)
	}

	s, ok := b.bestSplit(idx, c0, c1)
	if !ok {
		return b.leaf(c0, c1)
	}

	self := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Feature: s.feature, Threshold: s.threshold})
	b.importances[s.feature] += (c0 + c1) * s.decrease

	left := b.grow(s.left)
	right := b.grow(s.right)

	b.nodes[self].Left = left
	b.nodes[self].Right = right
	b.nodes[self].Value = [2]float64{c0 / (c0 + c1), c1 / (c0 + c1)}

	return self
}

// fitTree grows a tree on a bootstrap draw of (x, y) and returns it with its
// normalized impurity-decrease importances.
func fitTree(x [][]float64, y []int, maxFeatures int, seed int64) (*Tree, []float64) {
	rng := rand.New(rand.NewSource(seed))

	n := len(x)
	counts := make([]float64, n)
	for k := 0; k < n; k++ {
		counts[rng.Intn(n)]++
	}

	idx := make([]int, 0, n)
	for i, c := range counts {
		if c > 0 {
			idx = append(idx, i)
		}
	}

	b := &treeBuilder{
		x:           x,
		y:           y,
		counts:      counts,
		maxFeatures: maxFeatures,
		rng:         rng,
		importances: make([]float64, len(x[0])),
	}
	b.grow(idx)

	var sum float64
	for _, v := range b.importances {
		sum += v
	}
	if sum > 0 {
		for j := range b.importances {
			b.importances[j] /= sum
		}
	}

	return &Tree{Nodes: b.nodes}, b.importances
}
