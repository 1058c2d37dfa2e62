package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// preimage records what a path looked like before a Transaction touched
// it, so Rollback can restore it byte-for-byte.
type preimage struct {
	existed bool
	content []byte
	mode    os.FileMode
}

// Transaction stages a sequence of filesystem mutations against root,
// recording a pre-image of every path it touches the first time it sees
// it. Commit discards the staged pre-images (the mutations already landed
// on disk); Rollback restores every staged path to its pre-image,
// including deleting paths that did not exist before the transaction
// began.
type Transaction struct {
	root  string
	stage map[string]preimage // path -> pre-image, first-touch wins
	order []string            // insertion order, for deterministic rollback
}

// NewTransaction starts a transaction rooted at root (every staged path is
// resolved relative to it; Engine passes its WorkspaceRoot).
func NewTransaction(root string) *Transaction {
	return &Transaction{root: root, stage: make(map[string]preimage)}
}

func (t *Transaction) abs(rel string) string {
	return filepath.Join(t.root, rel)
}

// capture records rel's current on-disk state if this is the first time
// the transaction has touched it. Safe to call before every mutation.
func (t *Transaction) capture(rel string) error {
	if _, seen := t.stage[rel]; seen {
		return nil
	}
	path := t.abs(rel)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.stage[rel] = preimage{existed: false}
		t.order = append(t.order, rel)
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", rel)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	t.stage[rel] = preimage{existed: true, content: content, mode: info.Mode()}
	t.order = append(t.order, rel)
	return nil
}

// Apply stages and performs a single FileOperation. Create fails if the
// path already exists; Update fails if the path is absent or its live
// content no longer matches op.OldContent; Delete fails if the path is
// already absent; Read performs no mutation.
func (t *Transaction) Apply(op FileOperation) error {
	if err := t.capture(op.Path); err != nil {
		return vibeerr.New(vibeerr.KindExecution, "build.transaction", err)
	}
	path := t.abs(op.Path)

	switch op.Kind {
	case Read:
		if _, err := os.Stat(path); err != nil {
			return vibeerr.New(vibeerr.KindExecution, "build.transaction:read", err)
		}
		return nil

	case Create:
		if _, err := os.Stat(path); err == nil {
			return vibeerr.Newf(vibeerr.KindExecution, "build.transaction:create", "%s already exists", op.Path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return vibeerr.New(vibeerr.KindExecution, "build.transaction:create", err)
		}
		if err := os.WriteFile(path, []byte(op.Content), 0o644); err != nil {
			return vibeerr.New(vibeerr.KindExecution, "build.transaction:create", err)
		}
		return nil

	case Update:
		existing, err := os.ReadFile(path)
		if err != nil {
			return vibeerr.New(vibeerr.KindExecution, "build.transaction:update", err)
		}
		if string(existing) != op.OldContent {
			return vibeerr.Newf(vibeerr.KindExecution, "build.transaction:update",
				"content changed since plan creation: %s", op.Path)
		}
		if err := os.WriteFile(path, []byte(op.Content), 0o644); err != nil {
			return vibeerr.New(vibeerr.KindExecution, "build.transaction:update", err)
		}
		return nil

	case Delete:
		if _, err := os.Stat(path); err != nil {
			return vibeerr.New(vibeerr.KindExecution, "build.transaction:delete", err)
		}
		if err := os.Remove(path); err != nil {
			return vibeerr.New(vibeerr.KindExecution, "build.transaction:delete", err)
		}
		return nil

	default:
		return vibeerr.Newf(vibeerr.KindValidation, "build.transaction", "unknown operation kind %q", op.Kind)
	}
}

// Commit discards the staged pre-images. The mutations already applied to
// disk are left in place.
func (t *Transaction) Commit() {
	t.stage = make(map[string]preimage)
	t.order = nil
}

// Rollback restores every staged path to its pre-transaction state, in
// reverse touch order, and returns the first error encountered (continuing
// to attempt the remaining restores so one failure doesn't strand the
// rest of the workspace in a half-rolled-back state).
func (t *Transaction) Rollback() error {
	var firstErr error
	for i := len(t.order) - 1; i >= 0; i-- {
		rel := t.order[i]
		pre := t.stage[rel]
		path := t.abs(rel)

		var err error
		if pre.existed {
			err = os.WriteFile(path, pre.content, pre.mode)
		} else {
			err = os.Remove(path)
			if os.IsNotExist(err) {
				err = nil
			}
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rollback %s: %w", rel, err)
		}
	}
	t.stage = make(map[string]preimage)
	t.order = nil
	if firstErr != nil {
		return vibeerr.New(vibeerr.KindExecution, "build.transaction:rollback", firstErr)
	}
	return nil
}
