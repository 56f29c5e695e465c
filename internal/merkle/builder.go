package merkle

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"codesearch/internal/ignore"
)

// Builder constructs Merkle trees from filesystems.
// It walks the directory tree, computes hashes for each file,
// and builds a hierarchical structure that can be compared
// against future builds to detect changes.
type Builder struct {
	// Filter decides which paths are walked. A nil Filter walks
	// everything; NewBuilder always supplies one built from the
	// repository's gitignore files.
	Filter *ignore.Filter
}

// NewBuilder creates a Builder whose Filter is loaded from repoPath's
// gitignore files plus the built-in skip list.
func NewBuilder(repoPath string) (*Builder, error) {
	f, err := ignore.New(repoPath, ignore.Options{})
	if err != nil {
		return nil, err
	}
	return &Builder{Filter: f}, nil
}

// Build creates a Merkle tree from the given directory.
// It recursively walks the filesystem, computing hashes for each file
// and rolling up directory hashes from their children.
func (b *Builder) Build(repoPath string) (*Tree, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}

	root, fileCount, err := b.buildNode(absPath, "")
	if err != nil {
		return nil, err
	}

	return &Tree{
		Root:      root,
		RepoPath:  absPath,
		BuildTime: time.Now(),
		FileCount: fileCount,
	}, nil
}

// buildNode recursively builds a node for the given path.
// basePath is the absolute path to the repository root.
// relPath is the relative path from the root to this node.
// Returns the node, file count, and any error.
func (b *Builder) buildNode(basePath, relPath string) (*Node, int, error) {
	fullPath := filepath.Join(basePath, relPath)

	info, err := os.Lstat(fullPath)
	if err != nil {
		return nil, 0, err
	}

	// Skip symlinks to avoid cycles and security issues
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, 0, nil
	}

	node := &Node{
		Path:    relPath,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	fileCount := 0

	if info.IsDir() {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return nil, 0, err
		}

		for _, entry := range entries {
			name := entry.Name()
			childPath := filepath.Join(relPath, name)

			if b.Filter != nil && b.Filter.Skip(childPath, entry.IsDir()) {
				continue
			}

			child, count, err := b.buildNode(basePath, childPath)
			if err != nil {
				// Skip unreadable files/directories
				continue
			}

			if child == nil {
				continue
			}

			// Skip empty directories
			if child.IsDir && len(child.Children) == 0 {
				continue
			}

			node.Children = append(node.Children, child)
			fileCount += count
		}

		// Sort children by path for deterministic hashing
		sort.Slice(node.Children, func(i, j int) bool {
			return node.Children[i].Path < node.Children[j].Path
		})

		// Compute directory hash from children
		node.ComputeHash(nil)
	} else {
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, 0, err
		}
		node.ComputeHash(content)
		fileCount = 1
	}

	return node, fileCount, nil
}
