// Package trie holds the executor's state in a go-ethereum Merkle Patricia
// trie. Writes stay in memory until Commit; Reset reloads a committed root.
package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"fundchain/storage"
)

// Trie is not safe for concurrent use; the executor serialises access.
// Keys are expected to be Keccak-256 hashes.
type Trie struct {
	db      *triedb.Database
	current *gethtrie.Trie
	root    common.Hash
	// commits numbers triedb updates within this process.
	commits uint64
	dirty   bool
}

// NewTrie opens the trie at root. An empty root opens the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	t := &Trie{db: store.TrieDB(), root: gethtypes.EmptyRootHash}
	if len(root) > 0 {
		t.root = common.BytesToHash(root)
	}
	if err := t.open(t.root); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trie) open(root common.Hash) error {
	tr, err := gethtrie.New(gethtrie.TrieID(root), t.db)
	if err != nil {
		return err
	}
	t.current, t.root, t.dirty = tr, root, false
	return nil
}

// Get returns nil for a missing key.
func (t *Trie) Get(key []byte) ([]byte, error) { return t.current.Get(key) }

func (t *Trie) Update(key, value []byte) error {
	if err := t.current.Update(key, value); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

// Hash is the root including uncommitted writes.
func (t *Trie) Hash() common.Hash { return t.current.Hash() }

// Root is the last committed root.
func (t *Trie) Root() common.Hash { return t.root }

// Dirty reports whether Update was called since the last Commit or Reset.
func (t *Trie) Dirty() bool { return t.dirty }

// Reset drops uncommitted writes and reopens the trie at root.
func (t *Trie) Reset(root common.Hash) error { return t.open(root) }

// Commit flushes pending nodes to the backing database and returns the new
// root. A commit with no writes returns the current root unchanged.
func (t *Trie) Commit() (common.Hash, error) {
	parent := t.root
	root, nodes := t.current.Commit(false)
	if nodes != nil {
		set := trienode.NewMergedNodeSet()
		if err := set.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Update(root, parent, t.commits+1, set, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Commit(root, false); err != nil {
			return common.Hash{}, err
		}
		t.commits++
	}
	if err := t.open(root); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}
