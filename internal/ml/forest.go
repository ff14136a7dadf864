package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
)

// ForestConfig controls random forest fitting.
type ForestConfig struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            uint64
	Workers         int // 0 means runtime.NumCPU()
}

// Node is one node of a regression tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a regression tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a bagged ensemble of regression trees. Its prediction is the
// mean of the trees' predictions.
type Forest struct {
	NumFeatures int       `json:"num_features"`
	Trees       []Tree    `json:"trees"`
	Importances []float64 `json:"importances"`
}

// Predict walks one tree for x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Predict returns the ensemble mean for x.
func (f *Forest) Predict(x []float64) float64 {
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}

// Encode serialises the forest.
func (f *Forest) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeForest deserialises and structurally checks a forest.
func DecodeForest(data []byte) (*Forest, error) {
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if f.NumFeatures <= 0 {
		return nil, fmt.Errorf("forest has %d features", f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				continue
			}
			if n.Feature >= f.NumFeatures {
				return nil, fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return nil, fmt.Errorf("tree %d node %d: invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return &f, nil
}

// FitForest grows cfg.Trees trees, each on a bootstrap sample of the rows.
// Every tree draws from its own PCG stream derived from cfg.Seed and the tree
// index, so the result does not depend on how trees are scheduled.
func FitForest(ctx context.Context, X [][]float64, y []float64, cfg ForestConfig) (*Forest, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows for %d targets", ErrData, len(X), len(y))
	}
	width := len(X[0])
	if cfg.Trees <= 0 {
		cfg.Trees = 1
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > cfg.Trees {
		workers = cfg.Trees
	}

	trees := make([]Tree, cfg.Trees)
	perTree := make([][]float64, cfg.Trees)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := &treeBuilder{X: X, y: y, cfg: cfg}
			for t := range jobs {
				rng := rand.New(rand.NewPCG(cfg.Seed, uint64(t)))
				sample := make([]int, len(X))
				for i := range sample {
					sample[i] = rng.IntN(len(X))
				}
				trees[t], perTree[t] = b.build(sample, width)
			}
		}()
	}

	var err error
send:
	for t := 0; t < cfg.Trees; t++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break send
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()
	if err != nil {
		return nil, err
	}

	return &Forest{
		NumFeatures: width,
		Trees:       trees,
		Importances: averageImportances(perTree, width),
	}, nil
}

// averageImportances normalises each tree's impurity decrease, averages over
// trees and normalises the result to sum to one.
func averageImportances(perTree [][]float64, width int) []float64 {
	out := make([]float64, width)
	for _, imp := range perTree {
		var total float64
		for _, v := range imp {
			total += v
		}
		if total == 0 {
			continue
		}
		for i, v := range imp {
			out[i] += v / total
		}
	}
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}

type treeBuilder struct {
	X   [][]float64
	y   []float64
	cfg ForestConfig

	nodes      []Node
	importance []float64
	scratch    []int
}

func (b *treeBuilder) build(sample []int, width int) (Tree, []float64) {
	b.nodes = make([]Node, 0, 64)
	b.importance = make([]float64, width)
	if cap(b.scratch) < len(sample) {
		b.scratch = make([]int, len(sample))
	}
	b.grow(sample, 0, width)
	return Tree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) grow(idx []int, depth, width int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	mean := sum / n
	sse := sumSq - sum*sum/n

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: mean})

	if depth >= b.cfg.MaxDepth || len(idx) < b.cfg.MinSamplesSplit || sse <= 1e-12 {
		return id
	}

	feature, threshold, childSSE, ok := b.bestSplit(idx, width)
	if !ok || childSSE >= sse {
		return id
	}

	k := partition(idx, func(i int) bool { return b.X[i][feature] <= threshold })
	b.importance[feature] += sse - childSSE

	left := b.grow(idx[:k], depth+1, width)
	right := b.grow(idx[k:], depth+1, width)
	b.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: left, Right: right, Value: mean}
	return id
}

// bestSplit finds the feature and threshold that minimise the summed squared
// error of the two children.
func (b *treeBuilder) bestSplit(idx []int, width int) (int, float64, float64, bool) {
	n := len(idx)
	minLeaf := b.cfg.MinSamplesLeaf
	order := b.scratch[:n]

	bestFeature, bestThreshold, bestSSE := -1, 0.0, math.Inf(1)
	for f := 0; f < width; f++ {
		copy(order, idx)
		sort.Slice(order, func(i, j int) bool { return b.X[order[i]][f] < b.X[order[j]][f] })

		var totalSum, totalSq float64
		for _, i := range order {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			yi := b.y[order[k-1]]
			leftSum += yi
			leftSq += yi * yi
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.X[order[k-1]][f], b.X[order[k]][f]
			if lo == hi {
				continue
			}
			nl, nr := float64(k), float64(n-k)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			childSSE := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if childSSE < bestSSE {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestFeature, bestThreshold, bestSSE = f, threshold, childSSE
			}
		}
	}
	return bestFeature, bestThreshold, bestSSE, bestFeature >= 0
}

// partition reorders idx so that elements satisfying left come first and
// returns their count.
func partition(idx []int, left func(int) bool) int {
	k := 0
	for i, v := range idx {
		if left(v) {
			idx[i], idx[k] = idx[k], idx[i]
			k++
		}
	}
	return k
}
