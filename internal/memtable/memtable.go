// Package memtable implements the in-memory ordered write buffer: a
// height-balanced binary search tree keyed by int64, ported structurally
// from the original Rust AVL tree (insert-or-overwrite, point lookup,
// range scan into a dedup map, and sorted full drain).
package memtable

import "github.com/intellect4all/kvengine/internal/page"

type node struct {
	key, value  int64
	height      int32
	left, right *node
}

func newNode(key, value int64) *node {
	return &node{key: key, value: value, height: 1}
}

func height(n *node) int32 {
	if n == nil {
		return 0
	}
	return n.height
}

func (n *node) updateHeight() {
	n.height = 1 + max32(height(n.left), height(n.right))
}

func (n *node) balanceFactor() int32 {
	return height(n.left) - height(n.right)
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func leftRotate(root *node) *node {
	newRoot := root.right
	root.right = newRoot.left
	root.updateHeight()
	newRoot.left = root
	newRoot.updateHeight()
	return newRoot
}

func rightRotate(root *node) *node {
	newRoot := root.left
	root.left = newRoot.right
	root.updateHeight()
	newRoot.right = root
	newRoot.updateHeight()
	return newRoot
}

func leftRightRotate(root *node) *node {
	root.left = leftRotate(root.left)
	return rightRotate(root)
}

func rightLeftRotate(root *node) *node {
	root.right = rightRotate(root.right)
	return leftRotate(root)
}

// balance restores the AVL invariant at root after an insert of key.
func balance(root *node, key int64) *node {
	switch root.balanceFactor() {
	case -1, 0, 1:
		return root
	case 2:
		if key < root.left.key {
			return rightRotate(root)
		}
		return leftRightRotate(root)
	case -2:
		if key > root.right.key {
			return leftRotate(root)
		}
		return rightLeftRotate(root)
	default:
		panic("memtable: invalid balance factor")
	}
}

// insert returns the new subtree root and whether a new node was created
// (as opposed to an existing key being overwritten).
func insert(root *node, key, value int64) (*node, bool) {
	if root == nil {
		return newNode(key, value), true
	}
	switch {
	case key == root.key:
		root.value = value
		return root, false
	case key < root.key:
		left, created := insert(root.left, key, value)
		root.left = left
		root.updateHeight()
		return balance(root, key), created
	default:
		right, created := insert(root.right, key, value)
		root.right = right
		root.updateHeight()
		return balance(root, key), created
	}
}

func get(root *node, key int64) (int64, bool) {
	for root != nil {
		switch {
		case key == root.key:
			return root.value, true
		case key < root.key:
			root = root.left
		default:
			root = root.right
		}
	}
	return 0, false
}

func scan(root *node, lo, hi int64, out map[int64]int64) {
	if root == nil {
		return
	}
	if lo < root.key {
		scan(root.left, lo, hi, out)
	}
	if lo <= root.key && root.key <= hi {
		if _, present := out[root.key]; !present {
			out[root.key] = root.value
		}
	}
	scan(root.right, lo, hi, out)
}

func scanAll(root *node, out []page.Record) []page.Record {
	if root == nil {
		return out
	}
	out = scanAll(root.left, out)
	out = append(out, page.Record{Key: root.key, Value: root.value})
	out = scanAll(root.right, out)
	return out
}

// Tree is the AVL-tree memtable. The zero value is an empty, ready tree.
type Tree struct {
	root *node
	size uint32
}

// Put inserts key/value, or overwrites the value if key is already present.
func (t *Tree) Put(key, value int64) {
	newRoot, created := insert(t.root, key, value)
	t.root = newRoot
	if created {
		t.size++
	}
}

// Get returns the value for key, if present.
func (t *Tree) Get(key int64) (int64, bool) {
	return get(t.root, key)
}

// Delete marks key as deleted via a tombstone, per spec.md §4.3.
func (t *Tree) Delete(key int64) {
	t.Put(key, page.TombstoneValue)
}

// Scan inserts every (k, v) with lo <= k <= hi into out, skipping keys
// out already holds (so an earlier, newer write always wins a tie).
func (t *Tree) Scan(lo, hi int64, out map[int64]int64) {
	if lo > hi {
		return
	}
	scan(t.root, lo, hi, out)
}

// ScanAll returns every record in ascending key order.
func (t *Tree) ScanAll() []page.Record {
	return scanAll(t.root, make([]page.Record, 0, t.size))
}

// Size returns the current number of distinct keys held.
func (t *Tree) Size() uint32 { return t.size }
